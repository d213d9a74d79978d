package app

import (
	"log/slog"

	"github.com/pscheid92/commentreply/internal/domain"
	"github.com/pscheid92/commentreply/internal/ratelimit"
	"github.com/pscheid92/commentreply/internal/trigger"
)

// --- Command types ---

type engineCmd interface{ engineCmd() }

type cmdResolve struct {
	comment domain.Comment
	replyCh chan resolveResult
}

func (cmdResolve) engineCmd() {}

type resolveResult struct {
	rule      domain.ResponseRule
	monitored bool
	fired     bool
}

type cmdReplaceUsers struct {
	users   []domain.MonitoredUser
	replyCh chan int
}

func (cmdReplaceUsers) engineCmd() {}

// cmdReplaceUser swaps one cached user; a nil user drops it.
type cmdReplaceUser struct {
	userID  string
	user    *domain.MonitoredUser
	replyCh chan int
}

func (cmdReplaceUser) engineCmd() {}

type cmdUserCount struct {
	replyCh chan int
}

func (cmdUserCount) engineCmd() {}

type cmdStop struct {
	doneCh chan struct{}
}

func (cmdStop) engineCmd() {}

// --- Engine ---

// Engine owns the monitored-user cache and the rate-limit counters. Both are only touched
// from the actor goroutine; configuration I/O happens in the caller before a replace command.
type Engine struct {
	cmdCh    chan engineCmd
	stopCh   chan struct{}
	users    map[string]*domain.MonitoredUser
	limits   *ratelimit.State
	resolver *trigger.Resolver
}

func NewEngine(roll trigger.Roller, opts ...trigger.Option) *Engine {
	limits := ratelimit.NewState()
	return &Engine{
		cmdCh:    make(chan engineCmd, 512),
		stopCh:   make(chan struct{}),
		users:    make(map[string]*domain.MonitoredUser),
		limits:   limits,
		resolver: trigger.NewResolver(limits, roll, opts...),
	}
}

func (e *Engine) Start() {
	go e.run()
}

func (e *Engine) run() {
	for cmd := range e.cmdCh {
		switch c := cmd.(type) {
		case cmdResolve:
			c.replyCh <- e.handleResolve(c.comment)

		case cmdReplaceUsers:
			e.users = make(map[string]*domain.MonitoredUser, len(c.users))
			for i := range c.users {
				u := c.users[i]
				e.users[u.UserID] = &u
			}
			e.limits.Reset()
			slog.Info("Monitored users replaced", "users", len(e.users))
			c.replyCh <- len(e.users)

		case cmdReplaceUser:
			if c.user == nil {
				delete(e.users, c.userID)
			} else {
				u := *c.user
				e.users[c.userID] = &u
			}
			e.limits.ResetUser(c.userID)
			slog.Info("Monitored user replaced", "user_id", c.userID, "present", c.user != nil)
			c.replyCh <- len(e.users)

		case cmdUserCount:
			c.replyCh <- len(e.users)

		case cmdStop:
			close(e.stopCh)
			close(c.doneCh)
			return
		}
	}
}

func (e *Engine) handleResolve(c domain.Comment) resolveResult {
	user, ok := e.users[c.UserID]
	if !ok {
		return resolveResult{}
	}
	rule, fired := e.resolver.Resolve(c, user)
	return resolveResult{rule: rule, monitored: true, fired: fired}
}

// --- Public API ---

func ask[T any](e *Engine, cmd engineCmd, replyCh chan T) (res T, ok bool) {
	select {
	case e.cmdCh <- cmd:
	case <-e.stopCh:
		return res, false
	}
	select {
	case res = <-replyCh:
		return res, true
	case <-e.stopCh:
		return res, false
	}
}

// Resolve runs the trigger resolution for c. monitored is false when the author has no
// cached configuration; fired is false when no rule produced a reply.
func (e *Engine) Resolve(c domain.Comment) (rule domain.ResponseRule, monitored, fired bool) {
	replyCh := make(chan resolveResult, 1)
	res, _ := ask(e, cmdResolve{comment: c, replyCh: replyCh}, replyCh)
	return res.rule, res.monitored, res.fired
}

// ReplaceUsers swaps the whole cache and resets every counter. Returns the cached user count.
func (e *Engine) ReplaceUsers(users []domain.MonitoredUser) (int, error) {
	replyCh := make(chan int, 1)
	n, ok := ask(e, cmdReplaceUsers{users: users, replyCh: replyCh}, replyCh)
	if !ok {
		return 0, domain.ErrEngineStopped
	}
	return n, nil
}

// ReplaceUser swaps or, when user is nil, drops one cached user and resets that user's counters.
func (e *Engine) ReplaceUser(userID string, user *domain.MonitoredUser) (int, error) {
	replyCh := make(chan int, 1)
	n, ok := ask(e, cmdReplaceUser{userID: userID, user: user, replyCh: replyCh}, replyCh)
	if !ok {
		return 0, domain.ErrEngineStopped
	}
	return n, nil
}

func (e *Engine) UserCount() int {
	replyCh := make(chan int, 1)
	n, _ := ask(e, cmdUserCount{replyCh: replyCh}, replyCh)
	return n
}

func (e *Engine) Stop() {
	doneCh := make(chan struct{})
	select {
	case e.cmdCh <- cmdStop{doneCh: doneCh}:
		<-doneCh
	case <-e.stopCh:
	}
}
