package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/commentreply/internal/adapter/metrics"
	"github.com/pscheid92/commentreply/internal/compose"
	"github.com/pscheid92/commentreply/internal/delivery"
	"github.com/pscheid92/commentreply/internal/domain"
	"github.com/pscheid92/commentreply/internal/registry"
)

const defaultActionTimeout = 30 * time.Second

// SessionStore is the part of the connection registry the service needs.
type SessionStore interface {
	domain.SessionDirectory
	List(match func(domain.Session) bool) []domain.Session
}

// Renderer turns a resolved rule into reply text.
type Renderer interface {
	Render(ctx context.Context, rule domain.ResponseRule, c domain.Comment) (string, error)
	Vars(rule domain.ResponseRule, c domain.Comment) compose.Vars
}

// Deliverer queues reply text for a session.
type Deliverer interface {
	Deliver(ctx context.Context, sessionID, text string, delay time.Duration) <-chan delivery.Report
}

// ReloadPublisher tells other replicas to reload. userID is empty for a full reload.
type ReloadPublisher interface {
	PublishReload(ctx context.Context, userID string) error
}

// Outcome describes what happened to one comment. Result is one of the metrics.Result* values.
type Outcome struct {
	Result string
	Rule   domain.ResponseRule
	Text   string
	Target string
}

type Option func(*Service)

// WithChunkDelay sets the pause between consecutive chunks of one reply.
func WithChunkDelay(d time.Duration) Option {
	return func(s *Service) { s.chunkDelay = d }
}

// WithActions enables special-trigger actions.
func WithActions(runner domain.ActionRunner, timeout time.Duration) Option {
	return func(s *Service) {
		s.actions = runner
		if timeout > 0 {
			s.actionTimeout = timeout
		}
	}
}

// WithReloadPublisher fans reloads out to other replicas.
func WithReloadPublisher(p ReloadPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// Service is the application layer. It orchestrates all use cases around the Engine.
type Service struct {
	engine        *Engine
	configs       domain.ConfigSource
	sessions      SessionStore
	renderer      Renderer
	delivery      Deliverer
	clock         clockwork.Clock
	commentStats  *metrics.CommentMetrics
	configStats   *metrics.ConfigMetrics
	actions       domain.ActionRunner
	actionTimeout time.Duration
	publisher     ReloadPublisher
	chunkDelay    time.Duration
	reloadGroup   singleflight.Group
	background    sync.WaitGroup
}

func NewService(engine *Engine, configs domain.ConfigSource, sessions SessionStore, renderer Renderer, deliverer Deliverer, clock clockwork.Clock, commentStats *metrics.CommentMetrics, configStats *metrics.ConfigMetrics, opts ...Option) *Service {
	s := &Service{
		engine:        engine,
		configs:       configs,
		sessions:      sessions,
		renderer:      renderer,
		delivery:      deliverer,
		clock:         clock,
		commentStats:  commentStats,
		configStats:   configStats,
		actionTimeout: defaultActionTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleComment resolves, renders and queues the reply for c, received on the session
// senderID. The reply goes to the instance named in the comment when that session is
// reply-capable, otherwise back to the sender.
func (s *Service) HandleComment(ctx context.Context, senderID string, c domain.Comment) Outcome {
	start := s.clock.Now()
	out := s.handleComment(ctx, senderID, c)
	s.commentStats.CommentsProcessed.WithLabelValues(out.Result).Inc()
	s.commentStats.ProcessingDuration.Observe(s.clock.Since(start).Seconds())
	return out
}

func (s *Service) handleComment(ctx context.Context, senderID string, c domain.Comment) Outcome {
	target, ok := s.replyTarget(senderID, c)
	if !ok {
		slog.DebugContext(ctx, "No reply target for comment", "sender", senderID, "instance_id", c.InstanceID)
		return Outcome{Result: metrics.ResultNoTarget}
	}

	rule, monitored, fired := s.engine.Resolve(c)
	if !monitored {
		return Outcome{Result: metrics.ResultUnmonitored}
	}
	if !fired {
		return Outcome{Result: metrics.ResultNoRule}
	}
	s.commentStats.RulesFired.WithLabelValues(string(rule.Tier)).Inc()

	if rule.Action != nil {
		s.runAction(ctx, rule, c)
	}

	text, err := s.renderer.Render(ctx, rule, c)
	if err != nil {
		slog.InfoContext(ctx, "Rule produced no reply", "user_id", c.UserID, "tier", rule.Tier, "trigger_id", rule.TriggerID, "error", err)
		return Outcome{Result: metrics.ResultNoReply, Rule: rule}
	}

	reportCh := s.delivery.Deliver(ctx, target.ID(), text, s.chunkDelay)
	s.watch(ctx, reportCh)

	slog.InfoContext(ctx, "Reply queued",
		"user_id", c.UserID, "no", c.No, "tier", rule.Tier, "trigger_id", rule.TriggerID, "target", target.ID())
	return Outcome{Result: metrics.ResultReplied, Rule: rule, Text: text, Target: target.ID()}
}

func (s *Service) replyTarget(senderID string, c domain.Comment) (domain.Session, bool) {
	if c.InstanceID != "" {
		if t, ok := s.sessions.Lookup(c.InstanceID); ok && t.ReplyCapable() {
			return t, true
		}
	}
	t, ok := s.sessions.Lookup(senderID)
	if !ok {
		return domain.Session{}, false
	}
	// An unidentified sender is answered best-effort.
	if t.Identified() && !t.ReplyCapable() {
		return domain.Session{}, false
	}
	return t, true
}

// watch logs the delivery outcome without holding up the caller.
func (s *Service) watch(ctx context.Context, reportCh <-chan delivery.Report) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		rep := <-reportCh
		if rep.Err != nil {
			slog.WarnContext(ctx, "Reply delivery incomplete",
				"session_id", rep.SessionID, "sent", rep.Sent, "failed", rep.Failed, "error", rep.Err)
		}
	}()
}

func (s *Service) runAction(ctx context.Context, rule domain.ResponseRule, c domain.Comment) {
	if s.actions == nil {
		slog.DebugContext(ctx, "Special trigger action skipped, actions disabled", "trigger_id", rule.TriggerID)
		return
	}

	vars := s.renderer.Vars(rule, c)
	action := domain.Action{Program: rule.Action.Program, Args: make([]string, len(rule.Action.Args))}
	for i, arg := range rule.Action.Args {
		action.Args[i] = compose.Expand(arg, vars)
	}

	actionCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.actionTimeout)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer cancel()
		if err := s.actions.Run(actionCtx, action, c); err != nil {
			s.commentStats.ActionsRun.WithLabelValues("failed").Inc()
			slog.WarnContext(actionCtx, "Special trigger action failed", "trigger_id", rule.TriggerID, "program", action.Program, "error", err)
			return
		}
		s.commentStats.ActionsRun.WithLabelValues("ok").Inc()
	}()
}

// DirectSend delivers text to a reply-capable session and waits for the outcome.
func (s *Service) DirectSend(ctx context.Context, targetID, text string) error {
	target, ok := s.sessions.Lookup(targetID)
	if !ok {
		return fmt.Errorf("direct send to %s: %w", targetID, domain.ErrSessionNotFound)
	}
	if !registry.ReplyCapable(target) {
		return fmt.Errorf("direct send to %s: %w", targetID, domain.ErrNotReplyCapable)
	}

	select {
	case rep := <-s.delivery.Deliver(ctx, target.ID(), text, s.chunkDelay):
		if rep.Err != nil {
			return fmt.Errorf("direct send to %s: %w", targetID, rep.Err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListSessions returns the live sessions of broadcastID (all broadcasts when empty).
func (s *Service) ListSessions(broadcastID string, replierOnly bool) []domain.Session {
	return s.sessions.List(registry.ForBroadcast(broadcastID, replierOnly))
}

// Reload reloads configuration locally and asks other replicas to do the same.
func (s *Service) Reload(ctx context.Context, userID string) (domain.ReloadResult, error) {
	res, err := s.ReloadLocal(ctx, userID)
	if err != nil {
		return res, err
	}
	if s.publisher != nil {
		if err := s.publisher.PublishReload(ctx, userID); err != nil {
			slog.WarnContext(ctx, "Failed to publish reload", "user_id", userID, "error", err)
		}
	}
	return res, nil
}

// ReloadLocal re-reads every monitored user (empty userID) or one user from the
// configuration source and resets the affected counters. Concurrent reloads of the
// same scope are collapsed.
func (s *Service) ReloadLocal(ctx context.Context, userID string) (domain.ReloadResult, error) {
	key, scope := "*", "all"
	if userID != "" {
		key, scope = "user:"+userID, "user"
	}

	v, err, _ := s.reloadGroup.Do(key, func() (any, error) {
		return s.reload(ctx, userID)
	})
	if err != nil {
		s.configStats.Reloads.WithLabelValues(scope, "error").Inc()
		return domain.ReloadResult{UserID: userID}, err
	}
	res := v.(domain.ReloadResult)
	s.configStats.Reloads.WithLabelValues(scope, "ok").Inc()
	s.configStats.MonitoredUsers.Set(float64(res.Users))
	return res, nil
}

func (s *Service) reload(ctx context.Context, userID string) (domain.ReloadResult, error) {
	if userID == "" {
		users, err := s.configs.LoadAll(ctx)
		if err != nil {
			return domain.ReloadResult{}, fmt.Errorf("load monitored users: %w", err)
		}
		n, err := s.engine.ReplaceUsers(users)
		if err != nil {
			return domain.ReloadResult{}, err
		}
		return domain.ReloadResult{Users: n}, nil
	}

	user, err := s.configs.Load(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		user = nil
	case err != nil:
		return domain.ReloadResult{UserID: userID}, fmt.Errorf("load monitored user %s: %w", userID, err)
	}
	n, err := s.engine.ReplaceUser(userID, user)
	if err != nil {
		return domain.ReloadResult{UserID: userID}, err
	}
	return domain.ReloadResult{UserID: userID, Users: n}, nil
}

// Ready reports whether the configuration source is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.configs.Ping(ctx)
}

// Wait blocks until background delivery watchers and actions have finished.
func (s *Service) Wait() {
	s.background.Wait()
}
