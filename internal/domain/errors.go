package domain

import "errors"

var (
	ErrUserNotFound      = errors.New("monitored user not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrNotReplyCapable   = errors.New("session is not reply-capable")
	ErrNoReply           = errors.New("no reply produced")
	ErrGeneratorDisabled = errors.New("text generator not configured")
	ErrRegistryStopped   = errors.New("registry stopped")
	ErrEngineStopped     = errors.New("engine stopped")
	ErrSendQueueFull     = errors.New("send queue full")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrInvalidInstanceID = errors.New("instance id must not be empty")
	ErrInvalidConfig     = errors.New("invalid monitored user document")
)
