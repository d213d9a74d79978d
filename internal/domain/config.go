package domain

import "context"

// ConfigSource reads monitored-user configuration produced by the external
// configuration collaborator. Implementations never write.
type ConfigSource interface {
	LoadAll(ctx context.Context) ([]MonitoredUser, error)
	Load(ctx context.Context, userID string) (*MonitoredUser, error)
	Ping(ctx context.Context) error
}
