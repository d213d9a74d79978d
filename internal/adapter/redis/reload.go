package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/commentreply/internal/adapter/metrics"
	"github.com/pscheid92/commentreply/internal/domain"
)

// ReloadChannel carries configuration reload requests between replicas.
const ReloadChannel = "commentreply:reload"

type reloadMessage struct {
	Origin string `json:"origin"`
	UserID string `json:"user_id,omitempty"`
}

// LocalReloader reloads configuration on this replica only.
type LocalReloader interface {
	ReloadLocal(ctx context.Context, userID string) (domain.ReloadResult, error)
}

// ReloadFanout publishes reload requests and applies the ones published by
// other replicas. origin identifies this replica so it skips its own messages.
type ReloadFanout struct {
	rdb     *goredis.Client
	origin  string
	metrics *metrics.ConfigMetrics
}

func NewReloadFanout(rdb *goredis.Client, origin string, m *metrics.ConfigMetrics) *ReloadFanout {
	return &ReloadFanout{rdb: rdb, origin: origin, metrics: m}
}

func (f *ReloadFanout) PublishReload(ctx context.Context, userID string) error {
	payload, err := json.Marshal(reloadMessage{Origin: f.origin, UserID: userID})
	if err != nil {
		return fmt.Errorf("failed to encode reload message: %w", err)
	}
	if err := f.rdb.Publish(ctx, ReloadChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish reload: %w", err)
	}
	return nil
}

// Start subscribes to ReloadChannel and blocks until ctx is done or the
// subscription closes. ready, when non-nil, is closed once the subscription
// is confirmed.
func (f *ReloadFanout) Start(ctx context.Context, reloader LocalReloader, ready chan<- struct{}) error {
	pubsub := f.rdb.Subscribe(ctx, ReloadChannel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", ReloadChannel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.handle(ctx, reloader, msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

func (f *ReloadFanout) handle(ctx context.Context, reloader LocalReloader, payload string) {
	var msg reloadMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		slog.WarnContext(ctx, "Malformed reload message", "payload", payload, "error", err)
		return
	}
	if msg.Origin == f.origin {
		return
	}

	res, err := reloader.ReloadLocal(ctx, msg.UserID)
	if err != nil {
		slog.WarnContext(ctx, "Remote reload failed", "origin", msg.Origin, "user_id", msg.UserID, "error", err)
		return
	}
	if f.metrics != nil {
		f.metrics.RemoteReloads.Inc()
	}
	slog.InfoContext(ctx, "Configuration reloaded by remote request", "origin", msg.Origin, "user_id", msg.UserID, "users", res.Users)
}

// Ping reports whether Redis is reachable.
func (f *ReloadFanout) Ping(ctx context.Context) error {
	if err := f.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
