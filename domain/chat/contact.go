package chat

import "time"

// Contact is a peer the user shares a direct conversation with.
type Contact struct {
	UserID          string
	LastMessageTime time.Time
}
