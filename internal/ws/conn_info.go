package ws

import (
	"time"

	"github.com/google/uuid"
)

// ConnInfo describes one websocket connection for lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnID() string {
	return uuid.NewString()
}
