package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/commentreply/internal/domain"
)

func doc(userID string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(`{"user_id":"` + userID + `","enabled":true}`)}
}

func TestLoadAll(t *testing.T) {
	src := New(fstest.MapFS{
		"u1.json":      doc("u1"),
		"u2.json":      doc("u2"),
		"broken.json":  {Data: []byte("{")},
		"renamed.json": doc("someone-else"),
		"notes.txt":    {Data: []byte("ignored")},
		"sub/u3.json":  doc("u3"),
	})

	users, err := src.LoadAll(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)
}

func TestLoadAll_CanceledContext(t *testing.T) {
	src := New(fstest.MapFS{"u1.json": doc("u1")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.LoadAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoad(t *testing.T) {
	src := New(fstest.MapFS{
		"u1.json":  doc("u1"),
		"bad.json": {Data: []byte(`{"user_id":"bad","default_response":{"kind":"nope"}}`)},
	})
	ctx := context.Background()

	user, err := src.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UserID)
	assert.True(t, user.Enabled)

	_, err = src.Load(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = src.Load(ctx, "bad")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestLoad_RejectsPathsOutsideDir(t *testing.T) {
	src := New(fstest.MapFS{"u1.json": doc("u1")})

	for _, id := range []string{"", "../u1", "sub/u1", `..\u1`} {
		_, err := src.Load(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrUserNotFound, id)
	}
}

func TestNewDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u1.json"), []byte(`{"user_id":"u1"}`), 0o600))

	src := NewDir(dir)
	require.NoError(t, src.Ping(context.Background()))

	users, err := src.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].UserID)
}

func TestPing_MissingDir(t *testing.T) {
	src := NewDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, src.Ping(context.Background()))
}
