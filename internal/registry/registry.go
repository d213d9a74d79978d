package registry

import (
	"log/slog"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/samber/mo"

	"github.com/pscheid92/commentreply/internal/domain"
)

const handlePrefix = "tmp_"

// --- Command types ---

type registryCmd interface{ registryCmd() }

type cmdRegister struct {
	session domain.Session
	replyCh chan domain.Session
}

func (cmdRegister) registryCmd() {}

type cmdPromote struct {
	handle     string
	instanceID string
	info       domain.SessionInfo
	replyCh    chan promoteResult
}

func (cmdPromote) registryCmd() {}

type promoteResult struct {
	session domain.Session
	err     error
}

type cmdLookup struct {
	id      string
	replyCh chan mo.Option[domain.Session]
}

func (cmdLookup) registryCmd() {}

type cmdRemove struct {
	id string
}

func (cmdRemove) registryCmd() {}

type cmdList struct {
	match   func(domain.Session) bool
	replyCh chan []domain.Session
}

func (cmdList) registryCmd() {}

type cmdUpdateInfo struct {
	id      string
	info    domain.SessionInfo
	replyCh chan bool
}

func (cmdUpdateInfo) registryCmd() {}

type cmdCount struct {
	replyCh chan int
}

func (cmdCount) registryCmd() {}

type cmdStop struct{}

func (cmdStop) registryCmd() {}

// --- Registry ---

type Option func(*Registry)

// WithReplaceHook calls fn on the registry goroutine with every session dropped
// because a newer handshake claimed its instance id.
func WithReplaceHook(fn func(old domain.Session)) Option {
	return func(r *Registry) { r.onReplace = fn }
}

type Registry struct {
	cmdCh     chan registryCmd
	done      chan struct{}
	clock     clockwork.Clock
	onReplace func(old domain.Session)

	// sessions is keyed by Session.ID(); handles maps every live handle to that key.
	sessions map[string]domain.Session
	handles  map[string]string
}

func New(clock clockwork.Clock, opts ...Option) *Registry {
	r := &Registry{
		cmdCh:    make(chan registryCmd, 256),
		done:     make(chan struct{}),
		clock:    clock,
		sessions: make(map[string]domain.Session),
		handles:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

func (r *Registry) run() {
	defer close(r.done)
	for cmd := range r.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			c.replyCh <- r.handleRegister(c.session)
		case cmdPromote:
			s, err := r.handlePromote(c)
			c.replyCh <- promoteResult{session: s, err: err}
		case cmdLookup:
			c.replyCh <- r.handleLookup(c.id)
		case cmdRemove:
			r.handleRemove(c.id)
		case cmdList:
			c.replyCh <- r.handleList(c.match)
		case cmdUpdateInfo:
			c.replyCh <- r.handleUpdateInfo(c.id, c.info)
		case cmdCount:
			c.replyCh <- len(r.sessions)
		case cmdStop:
			r.handleStop()
			return
		}
	}
}

func (r *Registry) handleRegister(s domain.Session) domain.Session {
	s.Handle = handlePrefix + ulid.Make().String()
	s.InstanceID = mo.None[string]()
	if s.ConnectedAt.IsZero() {
		s.ConnectedAt = r.clock.Now()
	}
	r.sessions[s.Handle] = s
	r.handles[s.Handle] = s.Handle
	slog.Debug("Session registered", "handle", s.Handle, "remote_addr", s.RemoteAddr)
	return s
}

func (r *Registry) handlePromote(c cmdPromote) (domain.Session, error) {
	if c.instanceID == "" {
		return domain.Session{}, domain.ErrInvalidInstanceID
	}

	key, ok := r.handles[c.handle]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	s := r.sessions[key]

	if existing, ok := r.sessions[c.instanceID]; ok && existing.Handle != s.Handle {
		// Last handshake wins; the older transport is dropped.
		delete(r.handles, existing.Handle)
		if existing.Sender != nil {
			_ = existing.Sender.Close()
		}
		slog.Info("Session replaced by newer handshake",
			"instance_id", c.instanceID, "old_handle", existing.Handle, "new_handle", s.Handle)
		if r.onReplace != nil {
			r.onReplace(existing)
		}
	}

	delete(r.sessions, key)
	s.InstanceID = mo.Some(c.instanceID)
	s.BroadcastID = c.info.BroadcastID
	s.BroadcastTitle = c.info.BroadcastTitle
	s.Kind = c.info.Kind
	r.sessions[c.instanceID] = s
	r.handles[s.Handle] = c.instanceID
	return s, nil
}

func (r *Registry) resolve(id string) (string, bool) {
	if _, ok := r.sessions[id]; ok {
		return id, true
	}
	key, ok := r.handles[id]
	return key, ok
}

func (r *Registry) handleLookup(id string) mo.Option[domain.Session] {
	key, ok := r.resolve(id)
	if !ok {
		return mo.None[domain.Session]()
	}
	return mo.Some(r.sessions[key])
}

func (r *Registry) handleRemove(id string) {
	key, ok := r.resolve(id)
	if !ok {
		return
	}
	s := r.sessions[key]
	delete(r.sessions, key)
	delete(r.handles, s.Handle)
	slog.Debug("Session removed", "session_id", key, "handle", s.Handle)
}

func (r *Registry) handleList(match func(domain.Session) bool) []domain.Session {
	out := make([]domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if match == nil || match(s) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b domain.Session) int {
		return a.ConnectedAt.Compare(b.ConnectedAt)
	})
	return out
}

func (r *Registry) handleUpdateInfo(id string, info domain.SessionInfo) bool {
	key, ok := r.resolve(id)
	if !ok {
		return false
	}
	s := r.sessions[key]
	if info.BroadcastID != "" {
		s.BroadcastID = info.BroadcastID
	}
	if info.BroadcastTitle != "" {
		s.BroadcastTitle = info.BroadcastTitle
	}
	r.sessions[key] = s
	return true
}

func (r *Registry) handleStop() {
	for key, s := range r.sessions {
		if s.Sender != nil {
			_ = s.Sender.Close()
		}
		delete(r.sessions, key)
	}
	clear(r.handles)
}

// --- Public API ---

// request enqueues cmd and waits for its reply. ok is false once the registry has stopped.
func request[T any](r *Registry, cmd registryCmd, replyCh chan T) (res T, ok bool) {
	select {
	case r.cmdCh <- cmd:
	case <-r.done:
		return res, false
	}
	select {
	case res = <-replyCh:
		return res, true
	case <-r.done:
		return res, false
	}
}

// Register inventories a freshly accepted transport and returns the session with its
// temporary handle assigned.
func (r *Registry) Register(s domain.Session) (domain.Session, error) {
	replyCh := make(chan domain.Session, 1)
	registered, ok := request(r, cmdRegister{session: s, replyCh: replyCh}, replyCh)
	if !ok {
		return domain.Session{}, domain.ErrRegistryStopped
	}
	return registered, nil
}

// Promote re-keys the session behind handle under instanceID. A live session already
// holding instanceID is closed and dropped.
func (r *Registry) Promote(handle, instanceID string, info domain.SessionInfo) (domain.Session, error) {
	replyCh := make(chan promoteResult, 1)
	res, ok := request(r, cmdPromote{handle: handle, instanceID: instanceID, info: info, replyCh: replyCh}, replyCh)
	if !ok {
		return domain.Session{}, domain.ErrRegistryStopped
	}
	return res.session, res.err
}

// Lookup finds a session by instance id or by handle.
func (r *Registry) Lookup(id string) (domain.Session, bool) {
	replyCh := make(chan mo.Option[domain.Session], 1)
	res, ok := request(r, cmdLookup{id: id, replyCh: replyCh}, replyCh)
	if !ok {
		return domain.Session{}, false
	}
	return res.Get()
}

// Remove drops the session known by id (instance id or handle). Unknown ids are ignored,
// so a handle whose session was replaced by a newer handshake removes nothing.
func (r *Registry) Remove(id string) {
	select {
	case r.cmdCh <- cmdRemove{id: id}:
	case <-r.done:
	}
}

// List returns the sessions accepted by match (all when nil), oldest first.
// match runs on the registry goroutine and must not call back into the registry.
func (r *Registry) List(match func(domain.Session) bool) []domain.Session {
	replyCh := make(chan []domain.Session, 1)
	sessions, _ := request(r, cmdList{match: match, replyCh: replyCh}, replyCh)
	return sessions
}

// UpdateInfo fills in the broadcast id and title reported by an info response.
// Empty fields leave the stored value untouched.
func (r *Registry) UpdateInfo(id string, info domain.SessionInfo) bool {
	replyCh := make(chan bool, 1)
	updated, _ := request(r, cmdUpdateInfo{id: id, info: info, replyCh: replyCh}, replyCh)
	return updated
}

func (r *Registry) Count() int {
	replyCh := make(chan int, 1)
	n, _ := request(r, cmdCount{replyCh: replyCh}, replyCh)
	return n
}

// Stop closes every remaining session and terminates the actor.
func (r *Registry) Stop() {
	select {
	case r.cmdCh <- cmdStop{}:
	case <-r.done:
	}
	<-r.done
}
