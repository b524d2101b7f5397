package dialog

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// TurnMeta identifies the conversation a turn belongs to, as extracted
// from transport headers by the API layer.
type TurnMeta struct {
	ConversationID string
	ChannelID      string
	SenderID       string
	RemoteAddr     string
}

// DeriveKey maps turn metadata to a stable conversation key. The bool
// reports continuity: whether a later turn from the same party can derive
// the same key. Without any identity a random key is issued and pending
// sessions are unreachable from the next turn.
func DeriveKey(m TurnMeta) (string, bool) {
	if m.ConversationID != "" {
		return m.ConversationID, true
	}
	if m.ChannelID != "" && m.SenderID != "" {
		return m.ChannelID + ":" + m.SenderID, true
	}
	if m.RemoteAddr != "" {
		return fmt.Sprintf("addr:%016x", xxhash.Sum64String(m.RemoteAddr)), true
	}
	return uuid.New().String(), false
}
