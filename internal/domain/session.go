package domain

import (
	"context"
	"time"

	"github.com/samber/mo"
)

// ClientKind distinguishes sessions that can post replies from passive observers.
type ClientKind string

const (
	ClientKindReplier  ClientKind = "replier"
	ClientKindObserver ClientKind = "observer"
)

// ParseClientKind maps a handshake tag to a ClientKind. Unknown tags are observers.
func ParseClientKind(s string) ClientKind {
	switch s {
	case string(ClientKindReplier), "plugin", "ncv":
		return ClientKindReplier
	default:
		return ClientKindObserver
	}
}

// Sender writes one encoded frame to a live transport and waits for the result.
type Sender interface {
	Send(ctx context.Context, frame []byte) error
	Close() error
}

// Session is a snapshot of one live transport connection.
type Session struct {
	Handle         string
	InstanceID     mo.Option[string]
	BroadcastID    string
	BroadcastTitle string
	Kind           ClientKind
	RemoteAddr     string
	ConnectedAt    time.Time
	Sender         Sender
}

// ID returns the stable instance id once identified, the temporary handle before.
func (s Session) ID() string {
	return s.InstanceID.OrElse(s.Handle)
}

func (s Session) Identified() bool {
	return s.InstanceID.IsPresent()
}

func (s Session) ReplyCapable() bool {
	return s.Kind == ClientKindReplier
}

// SessionInfo is the metadata carried by a handshake or an info response.
type SessionInfo struct {
	BroadcastID    string
	BroadcastTitle string
	Kind           ClientKind
}

// SessionDirectory is the read side of the connection registry used by the engine.
type SessionDirectory interface {
	Lookup(id string) (Session, bool)
	Remove(id string)
}
