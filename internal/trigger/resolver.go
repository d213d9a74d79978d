package trigger

import (
	"github.com/pscheid92/commentreply/internal/domain"
	"github.com/pscheid92/commentreply/internal/ratelimit"
)

// Roller yields uniform integers in [0, n). *rand.Rand from math/rand/v2 satisfies it.
type Roller interface {
	IntN(n int) int
}

type Option func(*Resolver)

// WithBroadcasterMatching selects the broadcaster rule by the comment's broadcaster id
// instead of taking the first enabled one.
func WithBroadcasterMatching(enabled bool) Option {
	return func(r *Resolver) { r.matchByBroadcaster = enabled }
}

type Resolver struct {
	limits             *ratelimit.State
	roll               Roller
	matchByBroadcaster bool
}

func NewResolver(limits *ratelimit.State, roll Roller, opts ...Option) *Resolver {
	r := &Resolver{limits: limits, roll: roll}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the single rule that fires for comment c written by user, consuming
// the counters of every scope it passed through. The bool is false when nothing fires.
func (r *Resolver) Resolve(c domain.Comment, user *domain.MonitoredUser) (domain.ResponseRule, bool) {
	if user == nil || !user.Enabled {
		return domain.ResponseRule{}, false
	}

	if user.SpecialTriggersEnabled {
		if rule, ok := r.resolveSpecial(c, user); ok {
			return rule, true
		}
	}

	userKey := ratelimit.UserKey(user.UserID)
	if !r.limits.Allow(userKey, user.MaxReactions) {
		return domain.ResponseRule{}, false
	}

	br := r.selectBroadcaster(c, user)
	if br == nil {
		return r.userDefault(c, user)
	}

	brKey := ratelimit.BroadcasterKey(user.UserID, br.BroadcasterID)
	if !r.limits.Allow(brKey, br.MaxReactions) {
		return r.userDefault(c, user)
	}

	bctx := &domain.BroadcasterContext{ID: br.BroadcasterID, Name: br.BroadcasterName}

	for _, t := range br.Triggers {
		if !t.Enabled {
			continue
		}
		trKey := ratelimit.TriggerKey(user.UserID, t.ID)
		if !r.limits.Allow(trKey, t.MaxReactions) {
			continue
		}
		if !MatchKeywords(c.Text, t.Keywords, t.Mode) || !r.fires(t.Probability) {
			continue
		}

		r.limits.TryConsume(trKey, t.MaxReactions)
		r.limits.TryConsume(brKey, br.MaxReactions)
		r.limits.TryConsume(userKey, user.MaxReactions)
		return newRule(domain.TierTrigger, t.ID, t.Kind, t.Templates, bctx, c, nil), true
	}

	if !br.Default.Usable() {
		return domain.ResponseRule{}, false
	}

	r.limits.TryConsume(brKey, br.MaxReactions)
	r.limits.TryConsume(userKey, user.MaxReactions)
	return newRule(domain.TierBroadcasterDefault, "", br.Default.Kind, br.Default.Templates, bctx, c, nil), true
}

func (r *Resolver) resolveSpecial(c domain.Comment, user *domain.MonitoredUser) (domain.ResponseRule, bool) {
	for _, st := range user.SpecialTriggers {
		if !st.Enabled || !MatchKeywords(c.Text, st.Keywords, st.Mode) {
			continue
		}
		if !r.fires(st.Probability) {
			continue
		}
		if !st.IgnoreAllLimits && !r.limits.TryConsume(specialKey(user.UserID, st.ID), st.MaxReactions) {
			continue
		}
		return newRule(domain.TierSpecial, st.ID, st.Kind, st.Templates, nil, c, st.Action), true
	}
	return domain.ResponseRule{}, false
}

func (r *Resolver) selectBroadcaster(c domain.Comment, user *domain.MonitoredUser) *domain.BroadcasterRule {
	for i := range user.Broadcasters {
		br := &user.Broadcasters[i]
		if !br.Enabled {
			continue
		}
		if r.matchByBroadcaster && br.BroadcasterID != c.BroadcasterID {
			continue
		}
		return br
	}
	return nil
}

func (r *Resolver) userDefault(c domain.Comment, user *domain.MonitoredUser) (domain.ResponseRule, bool) {
	if !user.Default.Usable() {
		return domain.ResponseRule{}, false
	}
	if !r.limits.TryConsume(ratelimit.UserKey(user.UserID), user.MaxReactions) {
		return domain.ResponseRule{}, false
	}
	return newRule(domain.TierUserDefault, "", user.Default.Kind, user.Default.Templates, nil, c, nil), true
}

func (r *Resolver) fires(probability int) bool {
	return r.roll.IntN(100) < probability
}

// specialKey keeps special-trigger counters apart from ordinary triggers sharing an id.
func specialKey(userID, triggerID string) ratelimit.Key {
	return ratelimit.TriggerKey(userID, "special:"+triggerID)
}

func newRule(tier domain.Tier, id string, kind domain.ResponseKind, templates []string, bctx *domain.BroadcasterContext, c domain.Comment, action *domain.Action) domain.ResponseRule {
	return domain.ResponseRule{
		Tier:        tier,
		TriggerID:   id,
		Kind:        kind,
		Templates:   templates,
		Broadcaster: bctx,
		CommentNo:   c.No,
		Action:      action,
	}
}
