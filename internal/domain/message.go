// Package domain holds the value types shared across the relay.
package domain

import "time"

// ChatType classifies the conversation context an inbound message came from.
type ChatType string

const (
	// ChatTypeP2P is a direct chat between the bot and a single user.
	ChatTypeP2P ChatType = "p2p"
	// ChatTypeGroup is a multi-party chat.
	ChatTypeGroup ChatType = "group"
)

// InboundMessage is a chat message handed to the relay by an adapter.
type InboundMessage struct {
	ChatType  ChatType  `json:"chatType"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
