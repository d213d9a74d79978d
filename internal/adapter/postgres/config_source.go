package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/commentreply/internal/adapter/configdoc"
	"github.com/pscheid92/commentreply/internal/domain"
)

const (
	selectAllDocuments = `SELECT user_id, document FROM monitored_users ORDER BY user_id`
	selectDocument     = `SELECT user_id, document FROM monitored_users WHERE user_id = $1`
)

type documentRow struct {
	UserID   string
	Document []byte
}

// ConfigSource reads monitored users from the monitored_users table. The
// table is owned by the configuration editor; this type never writes to it.
type ConfigSource struct {
	pool *pgxpool.Pool
}

func NewConfigSource(pool *pgxpool.Pool) *ConfigSource {
	return &ConfigSource{pool: pool}
}

func (s *ConfigSource) LoadAll(ctx context.Context) ([]domain.MonitoredUser, error) {
	rows, err := s.pool.Query(ctx, selectAllDocuments)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitored users: %w", err)
	}

	docs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[documentRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan monitored users: %w", err)
	}

	users := make([]domain.MonitoredUser, 0, len(docs))
	for _, d := range docs {
		user, err := decodeRow(d)
		if err != nil {
			slog.WarnContext(ctx, "Skipping monitored user document", "user_id", d.UserID, "error", err)
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *ConfigSource) Load(ctx context.Context, userID string) (*domain.MonitoredUser, error) {
	rows, err := s.pool.Query(ctx, selectDocument, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitored user: %w", err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[documentRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan monitored user: %w", err)
	}

	user, err := decodeRow(d)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *ConfigSource) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func decodeRow(d documentRow) (domain.MonitoredUser, error) {
	user, err := configdoc.Decode(d.Document)
	if err != nil {
		return domain.MonitoredUser{}, err
	}
	if user.UserID != d.UserID {
		return domain.MonitoredUser{}, fmt.Errorf("%w: row %s declares user_id %q", domain.ErrInvalidConfig, d.UserID, user.UserID)
	}
	return user, nil
}
