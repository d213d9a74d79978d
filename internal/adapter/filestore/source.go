// Package filestore reads monitored-user documents from a directory, one
// <user_id>.json file per user.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/pscheid92/commentreply/internal/adapter/configdoc"
	"github.com/pscheid92/commentreply/internal/domain"
)

const documentExt = ".json"

type Source struct {
	fsys fs.FS
	name string
}

// NewDir returns a Source reading from dir.
func NewDir(dir string) *Source {
	return &Source{fsys: os.DirFS(dir), name: dir}
}

// New returns a Source reading from fsys.
func New(fsys fs.FS) *Source {
	return &Source{fsys: fsys, name: "fs"}
}

// LoadAll decodes every document in the directory. Documents that fail to
// decode are logged and skipped so one broken file does not hide the rest.
func (s *Source) LoadAll(ctx context.Context) ([]domain.MonitoredUser, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list config dir %s: %w", s.name, err)
	}

	users := make([]domain.MonitoredUser, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || path.Ext(entry.Name()) != documentExt {
			continue
		}

		user, err := s.read(entry.Name())
		if err != nil {
			slog.WarnContext(ctx, "Skipping monitored user document", "file", entry.Name(), "error", err)
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *Source) Load(ctx context.Context, userID string) (*domain.MonitoredUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := userID + documentExt
	if userID == "" || strings.ContainsAny(userID, `/\`) || !fs.ValidPath(name) {
		return nil, domain.ErrUserNotFound
	}

	user, err := s.read(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Source) Ping(_ context.Context) error {
	info, err := fs.Stat(s.fsys, ".")
	if err != nil {
		return fmt.Errorf("config dir %s: %w", s.name, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config dir %s is not a directory", s.name)
	}
	return nil
}

func (s *Source) read(name string) (domain.MonitoredUser, error) {
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return domain.MonitoredUser{}, fmt.Errorf("failed to read %s: %w", name, err)
	}

	user, err := configdoc.Decode(data)
	if err != nil {
		return domain.MonitoredUser{}, fmt.Errorf("%s: %w", name, err)
	}

	if want := strings.TrimSuffix(name, documentExt); user.UserID != want {
		return domain.MonitoredUser{}, fmt.Errorf("%w: %s declares user_id %q", domain.ErrInvalidConfig, name, user.UserID)
	}
	return user, nil
}
