package playback

import (
	"time"

	"github.com/google/uuid"
)

// Session correlates one continuous viewing of one item with the server's
// start/progress/stop reports. The id is generated once per load and never
// regenerated mid-session, even if commands are re-sent.
type Session struct {
	ID        string
	ItemID    string
	StartedAt time.Time
}

// NewSession creates a session for an item load.
func NewSession(itemID string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		ItemID:    itemID,
		StartedAt: time.Now(),
	}
}
