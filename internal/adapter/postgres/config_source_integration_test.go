package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/commentreply/internal/domain"
)

func TestConfigSource_LoadAll(t *testing.T) {
	pool := setupTestDB(t)
	src := NewConfigSource(pool)

	insertDocument(t, pool, "u2", `{"user_id":"u2","enabled":true}`)
	insertDocument(t, pool, "u1", `{"user_id":"u1","enabled":true,"max_reactions":3}`)
	insertDocument(t, pool, "broken", `{"user_id":"broken","default_response":{"kind":"nope"}}`)
	insertDocument(t, pool, "mismatch", `{"user_id":"other"}`)

	users, err := src.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].UserID)
	assert.Equal(t, 3, users[0].MaxReactions)
	assert.Equal(t, "u2", users[1].UserID)
}

func TestConfigSource_Load(t *testing.T) {
	pool := setupTestDB(t)
	src := NewConfigSource(pool)
	ctx := context.Background()

	insertDocument(t, pool, "u1", `{"user_id":"u1","enabled":true,"special_triggers":[{"id":"s1","enabled":true,"keywords":["!gift"]}]}`)

	user, err := src.Load(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, user.Enabled)
	require.Len(t, user.SpecialTriggers, 1)
	assert.Equal(t, "s1", user.SpecialTriggers[0].ID)

	_, err = src.Load(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestConfigSource_Ping(t *testing.T) {
	pool := setupTestDB(t)
	assert.NoError(t, NewConfigSource(pool).Ping(context.Background()))
}
