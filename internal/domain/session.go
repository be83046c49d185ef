package domain

// Mode is a collaboration mode name understood by the backend.
type Mode string

const (
	ModeDefault Mode = "default"
	ModePlan    Mode = "plan"
)

// Session is the active conversational state for one session key. Identity is
// external: the key is derived from chat identity and never stored here.
type Session struct {
	ThreadID string `json:"threadId"`
	Mode     Mode   `json:"mode"`
	Model    string `json:"model"`
	Cwd      string `json:"cwd"`
	Title    string `json:"title,omitempty"`
}

// SessionKey derives the stable session identifier for a chat participant.
//
// Direct chats collapse identity to the chat itself; group chats isolate a
// per-user context inside the shared chat. Distinct (chatType, chatID, userID)
// tuples never collide.
func SessionKey(chatType ChatType, chatID, userID string) string {
	if chatType == ChatTypeP2P {
		return "p2p:" + chatID
	}
	return "group:" + chatID + ":" + userID
}
