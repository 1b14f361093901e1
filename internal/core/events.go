package core

import "github.com/parleyhq/parley/internal/domain"

// Event types from client.
const (
	EventAuth              = "auth"
	EventJoinRoom          = "joinRoom"
	EventLeaveRoom         = "leaveRoom"
	EventPublicMessage     = "publicMessage"
	EventPrivateMessage    = "privateMessage"
	EventTyping            = "typing"
	EventPing              = "ping"
	EventWebRTCOffer       = "webrtc-offer"
	EventWebRTCAnswer      = "webrtc-answer"
	EventWebRTCCandidate   = "webrtc-ice-candidate"
	EventStartBroadcasting = "start-broadcasting"
	EventStopBroadcasting  = "stop-broadcasting"
	EventMicRequest        = "mic-request"
	EventMicApprove        = "mic-approve"
	EventMicDeny           = "mic-deny"
)

// Event types to client.
const (
	EventAuthResult     = "authResult"
	EventOnlineUsers    = "onlineUsers"
	EventNewMessage     = "newMessage"
	EventMessageHistory = "messageHistory"
	EventUserJoined     = "userJoined"
	EventUserLeft       = "userLeft"
	EventUserTyping     = "userTyping"
	EventSpeakerStarted = "speaker-started"
	EventSpeakerLeft    = "speaker-left"
	EventMicRequested   = "mic-requested"
	EventMicDenied      = "mic-denied"
	EventSuperseded     = "superseded"
	EventPong           = "pong"
	EventError          = "error"
)

// Error codes carried by ErrorEvent.
const (
	CodeBadPayload    = "BAD_PAYLOAD"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeRateLimited   = "RATE_LIMITED"
	CodePeerGone      = "PEER_GONE"
	CodeNotBroadcast  = "NOT_BROADCAST_ROOM"
	CodeNotAuthorized = "NOT_AUTHORIZED"
	CodeInternal      = "INTERNAL"
)

// Envelope is the minimal frame read before dispatch.
type Envelope struct {
	Type string `json:"type"`
}

// Client -> server payloads.

type AuthPayload struct {
	Type     string `json:"type"`
	UserID   string `json:"userId" validate:"required,max=36"`
	Username string `json:"username" validate:"required,max=36"`
	Token    string `json:"token,omitempty"`
}

type JoinRoomPayload struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId" validate:"required"`
	// LastID is the client's resume cursor; the server replies with only
	// newer messages.
	LastID int64 `json:"lastId,omitempty"`
}

type PublicMessagePayload struct {
	Type        string `json:"type"`
	Content     string `json:"content" validate:"required,max=4096"`
	MessageType string `json:"messageType" validate:"omitempty,oneof=text image system"`
	ClientNonce string `json:"clientNonce,omitempty" validate:"max=64"`
}

type PrivateMessagePayload struct {
	Type        string `json:"type"`
	ReceiverID  string `json:"receiverId" validate:"required"`
	Content     string `json:"content" validate:"required,max=4096"`
	MessageType string `json:"messageType" validate:"omitempty,oneof=text image system"`
}

type TypingPayload struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"isTyping"`
}

// SignalPayload carries an SDP offer/answer or an ICE candidate to relay.
type SignalPayload struct {
	Type          string `json:"type"`
	To            string `json:"to" validate:"required"`
	SDP           string `json:"sdp,omitempty"`
	Candidate     string `json:"candidate,omitempty"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
}

type BroadcastPayload struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId" validate:"required"`
}

type MicPayload struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId" validate:"required"`
	// UserID is the requester being approved/denied; empty on mic-request.
	UserID string `json:"userId,omitempty"`
}

// Server -> client payloads.

type AuthResultEvent struct {
	Type        string `json:"type"`
	Success     bool   `json:"success"`
	SessionID   string `json:"sessionId,omitempty"`
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role,omitempty"`
	Message     string `json:"message,omitempty"`
}

type OnlineUsersEvent struct {
	Type    string      `json:"type"`
	RoomID  string      `json:"roomId"`
	Members []MemberDTO `json:"members"`
	Count   int         `json:"count"`
}

type NewMessageEvent struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

type MessageHistoryEvent struct {
	Type     string           `json:"type"`
	RoomID   string           `json:"roomId"`
	Messages []domain.Message `json:"messages"`
}

type PresenceEvent struct {
	Type  string               `json:"type"`
	Delta domain.PresenceDelta `json:"delta"`
}

type TypingEvent struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type SpeakerEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type MicEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	// QueuePosition is meaningful on mic-requested only.
	QueuePosition int `json:"queuePosition,omitempty"`
}

// RelayedSignalEvent is a SignalPayload stamped with the sender.
type RelayedSignalEvent struct {
	Type          string `json:"type"`
	From          string `json:"from"`
	SDP           string `json:"sdp,omitempty"`
	Candidate     string `json:"candidate,omitempty"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
}

type SupersededEvent struct {
	Type string `json:"type"`
	// Reason is always CloseReasonSuperseded; kept explicit for clients.
	Reason string `json:"reason"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorEvent(code, message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Code: code, Message: message}
}
