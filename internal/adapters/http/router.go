package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/adapters/signal"
	"github.com/parleyhq/parley/internal/app/orch"
	"github.com/parleyhq/parley/internal/config"
)

// ClientTokenMiddleware gives every browser a stable opaque token, used
// to correlate reconnects before auth completes.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ParleySessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctl := signal.NewController(o, cfg)

	api := r.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("ws endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		infos := o.Rooms.List()
		type roomOut struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			IsBroadcast bool   `json:"is_broadcast"`
			MemberCount int    `json:"member_count"`
		}
		out := make([]roomOut, 0, len(infos))
		for _, info := range infos {
			out = append(out, roomOut{
				ID:          string(info.ID),
				Name:        string(info.Name),
				IsBroadcast: info.IsBroadcast,
				MemberCount: o.Presence.MemberCount(info.ID),
			})
		}
		c.JSON(http.StatusOK, gin.H{"rooms": out})
	})

	api.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"online": o.Registry.OnlineCount(),
			"rooms":  len(o.Rooms.List()),
		})
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
