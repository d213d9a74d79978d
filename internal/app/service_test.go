package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/commentreply/internal/adapter/metrics"
	"github.com/pscheid92/commentreply/internal/compose"
	"github.com/pscheid92/commentreply/internal/delivery"
	"github.com/pscheid92/commentreply/internal/domain"
)

// --- Mock implementations ---

type mockConfigSource struct {
	loadAllFn func(ctx context.Context) ([]domain.MonitoredUser, error)
	loadFn    func(ctx context.Context, userID string) (*domain.MonitoredUser, error)
	pingFn    func(ctx context.Context) error
}

func (m *mockConfigSource) LoadAll(ctx context.Context) ([]domain.MonitoredUser, error) {
	if m.loadAllFn != nil {
		return m.loadAllFn(ctx)
	}
	return nil, nil
}

func (m *mockConfigSource) Load(ctx context.Context, userID string) (*domain.MonitoredUser, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, userID)
	}
	return nil, domain.ErrUserNotFound
}

func (m *mockConfigSource) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newFakeSessions(sessions ...domain.Session) *fakeSessions {
	f := &fakeSessions{sessions: make(map[string]domain.Session)}
	for _, s := range sessions {
		f.sessions[s.ID()] = s
	}
	return f
}

func (f *fakeSessions) Lookup(id string) (domain.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	return s, ok
}

func (f *fakeSessions) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
}

func (f *fakeSessions) List(match func(domain.Session) bool) []domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for _, s := range f.sessions {
		if match(s) {
			out = append(out, s)
		}
	}
	return out
}

type delivered struct {
	sessionID string
	text      string
	delay     time.Duration
}

type fakeDeliverer struct {
	mu    sync.Mutex
	calls []delivered
	err   error
}

func (f *fakeDeliverer) Deliver(_ context.Context, sessionID, text string, delay time.Duration) <-chan delivery.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, delivered{sessionID: sessionID, text: text, delay: delay})
	ch := make(chan delivery.Report, 1)
	if f.err != nil {
		ch <- delivery.Report{SessionID: sessionID, Chunks: 1, Failed: 1, Err: f.err}
	} else {
		ch <- delivery.Report{SessionID: sessionID, Chunks: 1, Sent: 1}
	}
	return ch
}

func (f *fakeDeliverer) delivered() []delivered {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivered(nil), f.calls...)
}

type fakeGenerator struct {
	err error
}

func (g fakeGenerator) Generate(context.Context, string) (string, error) {
	return "", g.err
}

type recordingRunner struct {
	ran chan domain.Action
	err error
}

func (r *recordingRunner) Run(_ context.Context, action domain.Action, _ domain.Comment) error {
	r.ran <- action
	return r.err
}

type recordingPublisher struct {
	mu      sync.Mutex
	userIDs []string
}

func (p *recordingPublisher) PublishReload(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userIDs = append(p.userIDs, userID)
	return nil
}

// --- Helpers ---

var testTime = time.Date(2026, 5, 1, 19, 30, 0, 0, time.UTC)

type serviceFixture struct {
	svc      *Service
	engine   *Engine
	configs  *mockConfigSource
	sessions *fakeSessions
	deliver  *fakeDeliverer
}

func replier(id string) domain.Session {
	return domain.Session{Handle: "tmp_" + id, InstanceID: mo.Some(id), Kind: domain.ClientKindReplier, BroadcastID: "lv1"}
}

func observer(id string) domain.Session {
	return domain.Session{Handle: "tmp_" + id, InstanceID: mo.Some(id), Kind: domain.ClientKindObserver, BroadcastID: "lv1"}
}

func newFixture(t *testing.T, users []domain.MonitoredUser, sessions []domain.Session, opts ...Option) *serviceFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testTime)
	reg := prometheus.NewRegistry()

	engine := startEngine(t)
	configs := &mockConfigSource{loadAllFn: func(context.Context) ([]domain.MonitoredUser, error) { return users, nil }}
	store := newFakeSessions(sessions...)
	deliverer := &fakeDeliverer{}
	renderer := compose.New(clock, compose.WithLocation(time.UTC), compose.WithGenerator(fakeGenerator{err: errors.New("provider down")}))

	svc := NewService(engine, configs, store, renderer, deliverer, clock,
		metrics.NewCommentMetrics(reg), metrics.NewConfigMetrics(reg), opts...)
	_, err := svc.ReloadLocal(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(svc.Wait)

	return &serviceFixture{svc: svc, engine: engine, configs: configs, sessions: store, deliver: deliverer}
}

func aliceComment(text string) domain.Comment {
	return domain.Comment{No: 9, UserID: "u1", UserName: "Alice", Text: text, BroadcastID: "lv1"}
}

// --- Tests ---

func TestHandleComment_DisabledBroadcasterFallsBackToUserDefault(t *testing.T) {
	user := domain.MonitoredUser{
		UserID:  "u1",
		Enabled: true,
		Default: domain.DefaultResponse{Enabled: true, Templates: []string{"hi {user_name}"}},
		Broadcasters: []domain.BroadcasterRule{{
			BroadcasterID: "b1",
			Enabled:       false,
			Triggers:      []domain.Trigger{{ID: "t1", Enabled: true, Keywords: []string{"hello"}, Probability: 100, Templates: []string{"trigger"}}},
		}},
	}
	f := newFixture(t, []domain.MonitoredUser{user}, []domain.Session{replier("ncv-1")}, WithChunkDelay(time.Second))

	out := f.svc.HandleComment(context.Background(), "ncv-1", aliceComment("hello"))

	assert.Equal(t, metrics.ResultReplied, out.Result)
	assert.Equal(t, "hi Alice", out.Text)
	assert.Equal(t, []delivered{{sessionID: "ncv-1", text: "hi Alice", delay: time.Second}}, f.deliver.delivered())
}

func TestHandleComment_CeilingOneSecondCommentGetsNothing(t *testing.T) {
	user := domain.MonitoredUser{
		UserID:       "u1",
		Enabled:      true,
		MaxReactions: 1,
		Default:      domain.DefaultResponse{Enabled: true, Templates: []string{"welcome"}},
	}
	f := newFixture(t, []domain.MonitoredUser{user}, []domain.Session{replier("ncv-1")})

	first := f.svc.HandleComment(context.Background(), "ncv-1", aliceComment("one"))
	second := f.svc.HandleComment(context.Background(), "ncv-1", aliceComment("two"))

	assert.Equal(t, metrics.ResultReplied, first.Result)
	assert.Equal(t, metrics.ResultNoRule, second.Result)
	assert.Len(t, f.deliver.delivered(), 1)
}

func TestHandleComment_UnmonitoredAuthor(t *testing.T) {
	f := newFixture(t, nil, []domain.Session{replier("ncv-1")})

	out := f.svc.HandleComment(context.Background(), "ncv-1", aliceComment("hello"))
	assert.Equal(t, metrics.ResultUnmonitored, out.Result)
	assert.Empty(t, f.deliver.delivered())
}

func TestHandleComment_RoutesToNamedReplyCapableInstance(t *testing.T) {
	user := defaultOnlyUser("u1", 0)
	f := newFixture(t, []domain.MonitoredUser{user}, []domain.Session{observer("viewer"), replier("ncv-2")})

	c := aliceComment("x")
	c.InstanceID = "ncv-2"
	out := f.svc.HandleComment(context.Background(), "tmp_unknown", c)

	assert.Equal(t, metrics.ResultReplied, out.Result)
	assert.Equal(t, "ncv-2", out.Target)
}

func TestHandleComment_NamedObserverFallsBackToSender(t *testing.T) {
	user := defaultOnlyUser("u1", 0)
	f := newFixture(t, []domain.MonitoredUser{user}, []domain.Session{observer("viewer"), replier("ncv-1")})

	c := aliceComment("x")
	c.InstanceID = "viewer"
	out := f.svc.HandleComment(context.Background(), "ncv-1", c)

	assert.Equal(t, "ncv-1", out.Target)
}

func TestHandleComment_UnidentifiedSenderIsBestEffort(t *testing.T) {
	user := defaultOnlyUser("u1", 0)
	unidentified := domain.Session{Handle: "tmp_new"}
	f := newFixture(t, []domain.MonitoredUser{user}, []domain.Session{unidentified})

	out := f.svc.HandleComment(context.Background(), "tmp_new", aliceComment("x"))
	assert.Equal(t, metrics.ResultReplied, out.Result)
	assert.Equal(t, "tmp_new", out.Target)
}

func TestHandleComment_ObserverSenderHasNoTarget(t *testing.T) {
	user := domain.MonitoredUser{UserID: "u1", Enabled: true, MaxReactions: 1, Default: domain.DefaultResponse{Enabled: true, Templates: []string{"hi"}}}
	f := newFixture(t, []domain.MonitoredUser{user}, []domain.Session{observer("viewer"), replier("ncv-1")})

	out := f.svc.HandleComment(context.Background(), "viewer", aliceComment("x"))
	assert.Equal(t, metrics.ResultNoTarget, out.Result)

	// No counters were consumed, so the reply-capable session still gets its one reply.
	out = f.svc.HandleComment(context.Background(), "ncv-1", aliceComment("x"))
	assert.Equal(t, metrics.ResultReplied, out.Result)
}

func TestHandleComment_AIFailureIsNoReply(t *testing.T) {
	user := domain.MonitoredUser{
		UserID:  "u1",
		Enabled: true,
		Default: domain.DefaultResponse{Enabled: true, Kind: domain.ResponseAI, Templates: []string{"reply to {comment}"}},
	}
	f := newFixture(t, []domain.MonitoredUser{user}, []domain.Session{replier("ncv-1")})

	out := f.svc.HandleComment(context.Background(), "ncv-1", aliceComment("hello"))
	assert.Equal(t, metrics.ResultNoReply, out.Result)
	assert.Empty(t, f.deliver.delivered())
}

func TestHandleComment_SpecialTriggerRunsAction(t *testing.T) {
	user := domain.MonitoredUser{
		UserID:                 "u1",
		Enabled:                true,
		SpecialTriggersEnabled: true,
		SpecialTriggers: []domain.SpecialTrigger{{
			Trigger:         domain.Trigger{ID: "s1", Enabled: true, Keywords: []string{"alarm"}, Probability: 100, Templates: []string{"ALARM from {user_name}"}},
			IgnoreAllLimits: true,
			Action:          &domain.Action{Program: "/usr/local/bin/notify", Args: []string{"--who={user_name}", "#{no}"}},
		}},
	}
	runner := &recordingRunner{ran: make(chan domain.Action, 1)}
	f := newFixture(t, []domain.MonitoredUser{user}, []domain.Session{replier("ncv-1")}, WithActions(runner, time.Second))

	out := f.svc.HandleComment(context.Background(), "ncv-1", aliceComment("ALARM now"))
	assert.Equal(t, "ALARM from Alice", out.Text)

	select {
	case action := <-runner.ran:
		assert.Equal(t, "/usr/local/bin/notify", action.Program)
		assert.Equal(t, []string{"--who=Alice", "#9"}, action.Args)
	case <-time.After(5 * time.Second):
		t.Fatal("action did not run")
	}
}

func TestHandleComment_ActionSkippedWhenDisabled(t *testing.T) {
	user := domain.MonitoredUser{
		UserID:                 "u1",
		Enabled:                true,
		SpecialTriggersEnabled: true,
		SpecialTriggers: []domain.SpecialTrigger{{
			Trigger: domain.Trigger{ID: "s1", Enabled: true, Keywords: []string{"alarm"}, Probability: 100, Templates: []string{"ok"}},
			Action:  &domain.Action{Program: "/bin/false"},
		}},
	}
	f := newFixture(t, []domain.MonitoredUser{user}, []domain.Session{replier("ncv-1")})

	out := f.svc.HandleComment(context.Background(), "ncv-1", aliceComment("alarm"))
	assert.Equal(t, metrics.ResultReplied, out.Result)
}

func TestDirectSend(t *testing.T) {
	f := newFixture(t, nil, []domain.Session{replier("ncv-1"), observer("viewer"), {Handle: "tmp_anon"}})

	require.NoError(t, f.svc.DirectSend(context.Background(), "ncv-1", "manual message"))
	assert.Equal(t, "manual message", f.deliver.delivered()[0].text)

	err := f.svc.DirectSend(context.Background(), "missing", "x")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	err = f.svc.DirectSend(context.Background(), "viewer", "x")
	assert.ErrorIs(t, err, domain.ErrNotReplyCapable)

	err = f.svc.DirectSend(context.Background(), "tmp_anon", "x")
	assert.ErrorIs(t, err, domain.ErrNotReplyCapable, "unidentified sessions are not direct-send targets")
}

func TestDirectSend_DeliveryFailure(t *testing.T) {
	f := newFixture(t, nil, []domain.Session{replier("ncv-1")})
	f.deliver.err = errors.New("broken pipe")

	err := f.svc.DirectSend(context.Background(), "ncv-1", "x")
	assert.ErrorContains(t, err, "broken pipe")
}

func TestListSessions(t *testing.T) {
	other := replier("ncv-2")
	other.BroadcastID = "lv2"
	f := newFixture(t, nil, []domain.Session{replier("ncv-1"), other, observer("viewer")})

	assert.Len(t, f.svc.ListSessions("", false), 3)
	assert.Len(t, f.svc.ListSessions("", true), 2)
	assert.Len(t, f.svc.ListSessions("lv1", false), 2)

	only := f.svc.ListSessions("lv1", true)
	require.Len(t, only, 1)
	assert.Equal(t, "ncv-1", only[0].ID())
}

func TestReload_AllUsersPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, []domain.MonitoredUser{defaultOnlyUser("u1", 0), defaultOnlyUser("u2", 0)}, nil, WithReloadPublisher(pub))

	res, err := f.svc.Reload(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Users)
	assert.Equal(t, []string{""}, pub.userIDs)
}

func TestReloadLocal_DoesNotPublish(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, nil, nil, WithReloadPublisher(pub))

	_, err := f.svc.ReloadLocal(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, pub.userIDs)
}

func TestReload_SingleUser(t *testing.T) {
	f := newFixture(t, []domain.MonitoredUser{defaultOnlyUser("u1", 1)}, []domain.Session{replier("ncv-1")})

	out := f.svc.HandleComment(context.Background(), "ncv-1", aliceComment("x"))
	require.Equal(t, metrics.ResultReplied, out.Result)

	updated := defaultOnlyUser("u1", 1)
	updated.Default.Templates = []string{"updated {user_name}"}
	f.configs.loadFn = func(_ context.Context, userID string) (*domain.MonitoredUser, error) {
		require.Equal(t, "u1", userID)
		return &updated, nil
	}

	res, err := f.svc.Reload(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReloadResult{UserID: "u1", Users: 1}, res)

	out = f.svc.HandleComment(context.Background(), "ncv-1", aliceComment("x"))
	assert.Equal(t, "updated Alice", out.Text, "reload swaps config and resets the user's counters")
}

func TestReload_SingleUserRemovedFromSource(t *testing.T) {
	f := newFixture(t, []domain.MonitoredUser{defaultOnlyUser("u1", 0)}, []domain.Session{replier("ncv-1")})

	res, err := f.svc.Reload(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Users)

	out := f.svc.HandleComment(context.Background(), "ncv-1", aliceComment("x"))
	assert.Equal(t, metrics.ResultUnmonitored, out.Result)
}

func TestReload_SourceErrorKeepsCache(t *testing.T) {
	f := newFixture(t, []domain.MonitoredUser{defaultOnlyUser("u1", 0)}, []domain.Session{replier("ncv-1")})
	f.configs.loadAllFn = func(context.Context) ([]domain.MonitoredUser, error) {
		return nil, fmt.Errorf("disk on fire")
	}

	_, err := f.svc.Reload(context.Background(), "")
	assert.ErrorContains(t, err, "disk on fire")
	assert.Equal(t, 1, f.engine.UserCount())
}

func TestReady(t *testing.T) {
	f := newFixture(t, nil, nil)
	assert.NoError(t, f.svc.Ready(context.Background()))

	f.configs.pingFn = func(context.Context) error { return errors.New("unreachable") }
	assert.Error(t, f.svc.Ready(context.Background()))
}
