package registry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/commentreply/internal/domain"
)

type fakeSender struct {
	closed atomic.Bool
}

func (f *fakeSender) Send(context.Context, []byte) error { return nil }

func (f *fakeSender) Close() error {
	f.closed.Store(true)
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	r := New(clock)
	t.Cleanup(r.Stop)
	return r, clock
}

func register(t *testing.T, r *Registry, sender domain.Sender) domain.Session {
	t.Helper()
	s, err := r.Register(domain.Session{RemoteAddr: "127.0.0.1:1000", Sender: sender})
	require.NoError(t, err)
	return s
}

var replierInfo = domain.SessionInfo{BroadcastID: "lv1", BroadcastTitle: "Night stream", Kind: domain.ClientKindReplier}

func TestRegister_AssignsTemporaryHandle(t *testing.T) {
	r, clock := newTestRegistry(t)

	s := register(t, r, nil)
	assert.True(t, strings.HasPrefix(s.Handle, "tmp_"))
	assert.Len(t, s.Handle, len("tmp_")+26)
	assert.False(t, s.Identified())
	assert.Equal(t, s.Handle, s.ID())
	assert.Equal(t, clock.Now(), s.ConnectedAt)

	got, ok := r.Lookup(s.Handle)
	require.True(t, ok)
	assert.Equal(t, s.Handle, got.Handle)
	assert.Equal(t, 1, r.Count())
}

func TestRegister_HandlesAreUnique(t *testing.T) {
	r, _ := newTestRegistry(t)

	seen := make(map[string]bool)
	for range 100 {
		s := register(t, r, nil)
		require.False(t, seen[s.Handle])
		seen[s.Handle] = true
	}
	assert.Equal(t, 100, r.Count())
}

func TestPromote_RekeysByInstanceID(t *testing.T) {
	r, _ := newTestRegistry(t)
	s := register(t, r, nil)

	promoted, err := r.Promote(s.Handle, "ncv-1", replierInfo)
	require.NoError(t, err)
	assert.Equal(t, "ncv-1", promoted.ID())
	assert.True(t, promoted.Identified())
	assert.True(t, promoted.ReplyCapable())
	assert.Equal(t, "lv1", promoted.BroadcastID)
	assert.Equal(t, "Night stream", promoted.BroadcastTitle)

	byID, ok := r.Lookup("ncv-1")
	require.True(t, ok)
	assert.Equal(t, s.Handle, byID.Handle)

	byHandle, ok := r.Lookup(s.Handle)
	require.True(t, ok)
	assert.Equal(t, "ncv-1", byHandle.ID())
	assert.Equal(t, 1, r.Count())
}

func TestPromote_UnknownHandle(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Promote("tmp_missing", "ncv-1", replierInfo)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestPromote_EmptyInstanceID(t *testing.T) {
	r, _ := newTestRegistry(t)
	s := register(t, r, nil)

	_, err := r.Promote(s.Handle, "", replierInfo)
	assert.ErrorIs(t, err, domain.ErrInvalidInstanceID)
}

func TestPromote_CollisionNewerHandshakeWins(t *testing.T) {
	r, _ := newTestRegistry(t)
	oldSender, newSender := &fakeSender{}, &fakeSender{}

	older := register(t, r, oldSender)
	_, err := r.Promote(older.Handle, "ncv-1", replierInfo)
	require.NoError(t, err)

	newer := register(t, r, newSender)
	_, err = r.Promote(newer.Handle, "ncv-1", domain.SessionInfo{BroadcastID: "lv2", Kind: domain.ClientKindReplier})
	require.NoError(t, err)

	assert.True(t, oldSender.closed.Load(), "older transport is closed")
	assert.False(t, newSender.closed.Load())

	got, ok := r.Lookup("ncv-1")
	require.True(t, ok)
	assert.Equal(t, newer.Handle, got.Handle)
	assert.Equal(t, "lv2", got.BroadcastID)

	_, ok = r.Lookup(older.Handle)
	assert.False(t, ok, "stale handle no longer resolves")
	assert.Equal(t, 1, r.Count())
}

func TestRemove_StaleHandleKeepsNewerSession(t *testing.T) {
	r, _ := newTestRegistry(t)

	older := register(t, r, &fakeSender{})
	_, err := r.Promote(older.Handle, "ncv-1", replierInfo)
	require.NoError(t, err)
	newer := register(t, r, &fakeSender{})
	_, err = r.Promote(newer.Handle, "ncv-1", replierInfo)
	require.NoError(t, err)

	r.Remove(older.Handle)

	got, ok := r.Lookup("ncv-1")
	require.True(t, ok)
	assert.Equal(t, newer.Handle, got.Handle)
}

func TestRemove_ByHandleAndByInstanceID(t *testing.T) {
	r, _ := newTestRegistry(t)

	a := register(t, r, nil)
	b := register(t, r, nil)
	_, err := r.Promote(b.Handle, "ncv-b", replierInfo)
	require.NoError(t, err)

	r.Remove(a.Handle)
	r.Remove("ncv-b")

	_, ok := r.Lookup(a.Handle)
	assert.False(t, ok)
	_, ok = r.Lookup("ncv-b")
	assert.False(t, ok)
	_, ok = r.Lookup(b.Handle)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestRemove_UnknownIsNoop(t *testing.T) {
	r, _ := newTestRegistry(t)
	register(t, r, nil)

	r.Remove("nope")
	assert.Equal(t, 1, r.Count())
}

func TestList_FiltersAndOrdersByConnectTime(t *testing.T) {
	r, clock := newTestRegistry(t)

	first, err := r.Register(domain.Session{ConnectedAt: clock.Now().Add(time.Minute)})
	require.NoError(t, err)
	second, err := r.Register(domain.Session{ConnectedAt: clock.Now()})
	require.NoError(t, err)
	observer := register(t, r, nil)

	_, err = r.Promote(first.Handle, "ncv-1", replierInfo)
	require.NoError(t, err)
	_, err = r.Promote(second.Handle, "ncv-2", replierInfo)
	require.NoError(t, err)
	_, err = r.Promote(observer.Handle, "ctl-1", domain.SessionInfo{Kind: domain.ClientKindObserver})
	require.NoError(t, err)

	all := r.List(nil)
	assert.Len(t, all, 3)

	repliers := r.List(ForBroadcast("lv1", true))
	require.Len(t, repliers, 2)
	assert.Equal(t, "ncv-2", repliers[0].ID())
	assert.Equal(t, "ncv-1", repliers[1].ID())

	assert.Empty(t, r.List(ForBroadcast("lv-other", false)))
	assert.Len(t, r.List(ForBroadcast("", true)), 2)
}

func TestList_UnidentifiedSessionIsNotReplyCapable(t *testing.T) {
	r, _ := newTestRegistry(t)
	register(t, r, nil)

	assert.Len(t, r.List(nil), 1)
	assert.Empty(t, r.List(ReplyCapable))
}

func TestUpdateInfo(t *testing.T) {
	r, _ := newTestRegistry(t)
	s := register(t, r, nil)
	_, err := r.Promote(s.Handle, "ncv-1", domain.SessionInfo{Kind: domain.ClientKindReplier})
	require.NoError(t, err)

	assert.True(t, r.UpdateInfo("ncv-1", domain.SessionInfo{BroadcastID: "lv9", BroadcastTitle: "Late"}))
	got, _ := r.Lookup("ncv-1")
	assert.Equal(t, "lv9", got.BroadcastID)
	assert.Equal(t, "Late", got.BroadcastTitle)

	assert.True(t, r.UpdateInfo(s.Handle, domain.SessionInfo{BroadcastTitle: "Later"}))
	got, _ = r.Lookup("ncv-1")
	assert.Equal(t, "lv9", got.BroadcastID, "empty field keeps stored value")
	assert.Equal(t, "Later", got.BroadcastTitle)

	assert.False(t, r.UpdateInfo("missing", domain.SessionInfo{BroadcastID: "x"}))
}

func TestPromote_ReplaceHookSeesDroppedSession(t *testing.T) {
	var replaced []string
	r := New(clockwork.NewFakeClock(), WithReplaceHook(func(old domain.Session) {
		replaced = append(replaced, old.Handle)
	}))

	older := register(t, r, &fakeSender{})
	_, err := r.Promote(older.Handle, "ncv-1", replierInfo)
	require.NoError(t, err)
	newer := register(t, r, &fakeSender{})
	_, err = r.Promote(newer.Handle, "ncv-1", replierInfo)
	require.NoError(t, err)

	r.Stop()
	assert.Equal(t, []string{older.Handle}, replaced)
}

func TestStop_ClosesSessionsAndRejectsCalls(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(clock)
	sender := &fakeSender{}
	register(t, r, sender)

	r.Stop()
	assert.True(t, sender.closed.Load())

	_, err := r.Register(domain.Session{})
	assert.ErrorIs(t, err, domain.ErrRegistryStopped)
	_, ok := r.Lookup("anything")
	assert.False(t, ok)
	assert.Nil(t, r.List(nil))
	assert.Equal(t, 0, r.Count())
	r.Remove("anything")
	r.Stop()
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.Register(domain.Session{})
			if err != nil {
				return
			}
			if i%2 == 0 {
				r.Remove(s.Handle)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, r.Count())
}
