package domain

import "context"

// TextGenerator produces reply text from a prompt using an external provider.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ActionRunner executes the external program attached to a special trigger.
type ActionRunner interface {
	Run(ctx context.Context, action Action, comment Comment) error
}

// ReloadResult summarises a configuration reload.
type ReloadResult struct {
	UserID string
	Users  int
}

// Reloader reloads configuration for all users (empty userID) or a single user.
type Reloader interface {
	Reload(ctx context.Context, userID string) (ReloadResult, error)
}
