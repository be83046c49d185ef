package gateway

// Frame types for the adapter WebSocket protocol.
const (
	FrameTypeMessage = "msg"
	FrameTypeReply   = "reply"
	FrameTypeError   = "error"
)

// Frame is the envelope for all adapter WebSocket messages. Inbound frames
// are type "msg"; the server answers with "reply" or "error". A turn that
// produces no reply produces no frame.
type Frame struct {
	Type     string `json:"type"`
	ChatType string `json:"chatType,omitempty"`
	ChatID   string `json:"chatId,omitempty"`
	SenderID string `json:"senderId,omitempty"`
	Text     string `json:"text,omitempty"`
	Error    string `json:"error,omitempty"`
}
