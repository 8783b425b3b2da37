package router

import "encoding/json"

// ClientMessage is the inbound wire envelope.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage is the outbound wire envelope.
type ServerMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound event names.
const (
	EventUserOnline        = "user_online"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventMarkRead          = "mark_read"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventInitiateCall      = "initiate_call"
	EventAcceptCall        = "accept_call"
	EventRejectCall        = "reject_call"
	EventEndCall           = "end_call"
)

// Outbound event names. The typing events share their inbound names: they are
// relayed to the room under the same tag.
const (
	EventNewMessage       = "new_message"
	EventUserStatusChange = "user_status_change"
	EventCallInitiated    = "call_initiated"
	EventError            = "error"
)

type StatusChangePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"` // online, offline
}

type TypingPayload struct {
	UserID         string `json:"userId"`
	UserName       string `json:"userName,omitempty"`
	ConversationID string `json:"conversationId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type CallFailedPayload struct {
	CallID string `json:"callId,omitempty"`
	Reason string `json:"reason"`
}
