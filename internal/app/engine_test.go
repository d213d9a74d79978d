package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/commentreply/internal/domain"
	"github.com/pscheid92/commentreply/internal/trigger"
)

type alwaysRoll int

func (a alwaysRoll) IntN(int) int { return int(a) }

func startEngine(t *testing.T, opts ...trigger.Option) *Engine {
	t.Helper()
	e := NewEngine(alwaysRoll(0), opts...)
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func defaultOnlyUser(id string, ceiling int) domain.MonitoredUser {
	return domain.MonitoredUser{
		UserID:       id,
		Enabled:      true,
		MaxReactions: ceiling,
		Default:      domain.DefaultResponse{Enabled: true, Kind: domain.ResponseStatic, Templates: []string{"hi {user_name}"}},
	}
}

func TestEngine_UnknownUserIsNotMonitored(t *testing.T) {
	e := startEngine(t)

	_, monitored, fired := e.Resolve(domain.Comment{UserID: "ghost", Text: "hello"})
	assert.False(t, monitored)
	assert.False(t, fired)
}

func TestEngine_ResolveUsesCachedUser(t *testing.T) {
	e := startEngine(t)
	n, err := e.ReplaceUsers([]domain.MonitoredUser{defaultOnlyUser("u1", 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rule, monitored, fired := e.Resolve(domain.Comment{UserID: "u1", No: 3})
	assert.True(t, monitored)
	require.True(t, fired)
	assert.Equal(t, domain.TierUserDefault, rule.Tier)
	assert.Equal(t, 3, rule.CommentNo)
}

func TestEngine_ReplaceUsersResetsCounters(t *testing.T) {
	e := startEngine(t)
	users := []domain.MonitoredUser{defaultOnlyUser("u1", 1)}
	_, err := e.ReplaceUsers(users)
	require.NoError(t, err)

	_, _, fired := e.Resolve(domain.Comment{UserID: "u1"})
	require.True(t, fired)
	_, _, fired = e.Resolve(domain.Comment{UserID: "u1"})
	require.False(t, fired, "ceiling of one reached")

	_, err = e.ReplaceUsers(users)
	require.NoError(t, err)
	_, _, fired = e.Resolve(domain.Comment{UserID: "u1"})
	assert.True(t, fired, "reload resets counters")
}

func TestEngine_ReplaceUserResetsOnlyThatUser(t *testing.T) {
	e := startEngine(t)
	_, err := e.ReplaceUsers([]domain.MonitoredUser{defaultOnlyUser("u1", 1), defaultOnlyUser("u2", 1)})
	require.NoError(t, err)

	for _, id := range []string{"u1", "u2"} {
		_, _, fired := e.Resolve(domain.Comment{UserID: id})
		require.True(t, fired)
	}

	u1 := defaultOnlyUser("u1", 1)
	n, err := e.ReplaceUser("u1", &u1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, _, fired := e.Resolve(domain.Comment{UserID: "u1"})
	assert.True(t, fired)
	_, _, fired = e.Resolve(domain.Comment{UserID: "u2"})
	assert.False(t, fired)
}

func TestEngine_ReplaceUserNilDrops(t *testing.T) {
	e := startEngine(t)
	_, err := e.ReplaceUsers([]domain.MonitoredUser{defaultOnlyUser("u1", 0)})
	require.NoError(t, err)

	n, err := e.ReplaceUser("u1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, e.UserCount())

	_, monitored, _ := e.Resolve(domain.Comment{UserID: "u1"})
	assert.False(t, monitored)
}

func TestEngine_ReplaceUsersCopiesInput(t *testing.T) {
	e := startEngine(t)
	users := []domain.MonitoredUser{defaultOnlyUser("u1", 0)}
	_, err := e.ReplaceUsers(users)
	require.NoError(t, err)

	users[0].Enabled = false

	_, _, fired := e.Resolve(domain.Comment{UserID: "u1"})
	assert.True(t, fired)
}

func TestEngine_ConcurrentResolveNeverOvershootsCeiling(t *testing.T) {
	e := startEngine(t)
	_, err := e.ReplaceUsers([]domain.MonitoredUser{defaultOnlyUser("u1", 10)})
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		fires int
		wg    sync.WaitGroup
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, fired := e.Resolve(domain.Comment{UserID: "u1"}); fired {
				mu.Lock()
				fires++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, fires)
}

func TestEngine_StoppedEngine(t *testing.T) {
	e := NewEngine(alwaysRoll(0))
	e.Start()
	e.Stop()

	_, monitored, _ := e.Resolve(domain.Comment{UserID: "u1"})
	assert.False(t, monitored)
	_, err := e.ReplaceUsers(nil)
	assert.ErrorIs(t, err, domain.ErrEngineStopped)
	e.Stop()
}
