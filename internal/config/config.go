package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type RoomSeed struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	IsDefault   bool   `mapstructure:"is_default"`
	IsBroadcast bool   `mapstructure:"is_broadcast"`
	HostID      string `mapstructure:"host_id"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WebSocketConfig carries the transport timings shared by the read and
// write pumps.
type WebSocketConfig struct {
	ReadLimit    int64         `mapstructure:"read_limit"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

type Config struct {
	Mode       string          `mapstructure:"mode"`
	Port       int             `mapstructure:"port"`
	StaticPath string          `mapstructure:"static_path"`
	Secret     string          `mapstructure:"secret"`
	JWTSecret  string          `mapstructure:"jwt_secret"`
	Redis      RedisConfig     `mapstructure:"redis"`
	WS         WebSocketConfig `mapstructure:"ws"`

	// Presence and dedup tuning.
	PresenceGrace time.Duration `mapstructure:"presence_grace"`
	DedupWindow   time.Duration `mapstructure:"dedup_window"`
	DedupMaxSize  int           `mapstructure:"dedup_max_size"`

	// Signaling rate limit per user.
	SignalRateLimit    int           `mapstructure:"signal_rate_limit"`
	SignalRateInterval time.Duration `mapstructure:"signal_rate_interval"`

	Rooms []RoomSeed `mapstructure:"rooms"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "parley-dev-secret")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ws.read_limit", 32768)
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.ping_interval", "54s")
	v.SetDefault("ws.write_wait", "5s")
	v.SetDefault("ws.send_buffer", 64)
	v.SetDefault("presence_grace", "3s")
	v.SetDefault("dedup_window", "5s")
	v.SetDefault("dedup_max_size", 4096)
	v.SetDefault("signal_rate_limit", 30)
	v.SetDefault("signal_rate_interval", "10s")
	v.SetDefault("rooms", []map[string]any{
		{"id": "general", "name": "General", "is_default": true},
	})

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Rooms: %d\n", cfg.Mode, cfg.Port, len(cfg.Rooms))
	return &cfg, nil
}
