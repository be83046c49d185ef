package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionKey(t *testing.T) {
	tests := []struct {
		name     string
		chatType ChatType
		chatID   string
		userID   string
		want     string
	}{
		{"p2p collapses to chat", ChatTypeP2P, "oc_123", "u_9", "p2p:oc_123"},
		{"group isolates per user", ChatTypeGroup, "oc_123", "u_9", "group:oc_123:u_9"},
		{"group distinct users", ChatTypeGroup, "oc_123", "u_10", "group:oc_123:u_10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SessionKey(tt.chatType, tt.chatID, tt.userID))
		})
	}
}

func TestSessionKeyDistinctTuples(t *testing.T) {
	keys := map[string]bool{}
	for _, k := range []string{
		SessionKey(ChatTypeP2P, "c1", "u1"),
		SessionKey(ChatTypeGroup, "c1", "u1"),
		SessionKey(ChatTypeGroup, "c1", "u2"),
		SessionKey(ChatTypeGroup, "c2", "u1"),
	} {
		assert.False(t, keys[k], "duplicate key %q", k)
		keys[k] = true
	}
}
