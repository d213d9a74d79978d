package domain

import "time"

// Comment is one inbound chat comment as reported by a viewer client.
type Comment struct {
	No            int
	UserID        string
	UserName      string
	Text          string
	BroadcastID   string
	BroadcasterID string
	InstanceID    string
	ReceivedAt    time.Time
}
