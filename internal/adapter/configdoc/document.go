// Package configdoc decodes the monitored-user JSON document shared by every
// configuration source.
package configdoc

import (
	"encoding/json"
	"fmt"

	"github.com/pscheid92/commentreply/internal/domain"
)

const defaultProbability = 100

type document struct {
	UserID                 string              `json:"user_id"`
	DisplayName            string              `json:"display_name,omitempty"`
	Enabled                bool                `json:"enabled"`
	SpecialTriggersEnabled bool                `json:"special_triggers_enabled"`
	MaxReactions           int                 `json:"max_reactions,omitempty"`
	Default                responseDoc         `json:"default_response"`
	Broadcasters           []broadcasterDoc    `json:"broadcasters,omitempty"`
	SpecialTriggers        []specialTriggerDoc `json:"special_triggers,omitempty"`
}

type responseDoc struct {
	Enabled   bool     `json:"enabled"`
	Kind      string   `json:"kind,omitempty"`
	Templates []string `json:"templates,omitempty"`
}

type broadcasterDoc struct {
	BroadcasterID   string       `json:"broadcaster_id"`
	BroadcasterName string       `json:"broadcaster_name,omitempty"`
	Enabled         bool         `json:"enabled"`
	MaxReactions    int          `json:"max_reactions,omitempty"`
	Default         responseDoc  `json:"default_response"`
	Triggers        []triggerDoc `json:"triggers,omitempty"`
}

type triggerDoc struct {
	ID           string   `json:"id"`
	Enabled      bool     `json:"enabled"`
	Keywords     []string `json:"keywords"`
	Mode         string   `json:"mode,omitempty"`
	Kind         string   `json:"kind,omitempty"`
	Templates    []string `json:"templates,omitempty"`
	Probability  *int     `json:"probability,omitempty"`
	MaxReactions int      `json:"max_reactions,omitempty"`
}

type specialTriggerDoc struct {
	triggerDoc
	IgnoreAllLimits bool       `json:"ignore_all_limits,omitempty"`
	Action          *actionDoc `json:"action,omitempty"`
}

type actionDoc struct {
	Program string   `json:"program"`
	Args    []string `json:"args,omitempty"`
}

// Decode parses one monitored-user document. Missing kinds default to static,
// missing modes to "and" and a missing probability to 100.
func Decode(data []byte) (domain.MonitoredUser, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.MonitoredUser{}, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	if doc.UserID == "" {
		return domain.MonitoredUser{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidConfig)
	}

	user := domain.MonitoredUser{
		UserID:                 doc.UserID,
		DisplayName:            doc.DisplayName,
		Enabled:                doc.Enabled,
		SpecialTriggersEnabled: doc.SpecialTriggersEnabled,
		MaxReactions:           doc.MaxReactions,
	}

	var err error
	if user.Default, err = doc.Default.toDomain(); err != nil {
		return domain.MonitoredUser{}, fmt.Errorf("%w: user %s default_response: %w", domain.ErrInvalidConfig, doc.UserID, err)
	}

	for i, b := range doc.Broadcasters {
		rule, err := b.toDomain()
		if err != nil {
			return domain.MonitoredUser{}, fmt.Errorf("%w: user %s broadcasters[%d]: %w", domain.ErrInvalidConfig, doc.UserID, i, err)
		}
		user.Broadcasters = append(user.Broadcasters, rule)
	}

	for i, s := range doc.SpecialTriggers {
		st, err := s.toDomain()
		if err != nil {
			return domain.MonitoredUser{}, fmt.Errorf("%w: user %s special_triggers[%d]: %w", domain.ErrInvalidConfig, doc.UserID, i, err)
		}
		user.SpecialTriggers = append(user.SpecialTriggers, st)
	}

	return user, nil
}

// Encode renders a monitored user in the document format Decode reads.
func Encode(user domain.MonitoredUser) ([]byte, error) {
	doc := document{
		UserID:                 user.UserID,
		DisplayName:            user.DisplayName,
		Enabled:                user.Enabled,
		SpecialTriggersEnabled: user.SpecialTriggersEnabled,
		MaxReactions:           user.MaxReactions,
		Default:                responseFromDomain(user.Default),
	}
	for _, b := range user.Broadcasters {
		bd := broadcasterDoc{
			BroadcasterID:   b.BroadcasterID,
			BroadcasterName: b.BroadcasterName,
			Enabled:         b.Enabled,
			MaxReactions:    b.MaxReactions,
			Default:         responseFromDomain(b.Default),
		}
		for _, t := range b.Triggers {
			bd.Triggers = append(bd.Triggers, triggerFromDomain(t))
		}
		doc.Broadcasters = append(doc.Broadcasters, bd)
	}
	for _, s := range user.SpecialTriggers {
		sd := specialTriggerDoc{triggerDoc: triggerFromDomain(s.Trigger), IgnoreAllLimits: s.IgnoreAllLimits}
		if s.Action != nil {
			sd.Action = &actionDoc{Program: s.Action.Program, Args: s.Action.Args}
		}
		doc.SpecialTriggers = append(doc.SpecialTriggers, sd)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode monitored user %s: %w", user.UserID, err)
	}
	return data, nil
}

func (r responseDoc) toDomain() (domain.DefaultResponse, error) {
	kind, err := parseKind(r.Kind)
	if err != nil {
		return domain.DefaultResponse{}, err
	}
	return domain.DefaultResponse{Enabled: r.Enabled, Kind: kind, Templates: r.Templates}, nil
}

func (b broadcasterDoc) toDomain() (domain.BroadcasterRule, error) {
	if b.BroadcasterID == "" {
		return domain.BroadcasterRule{}, fmt.Errorf("broadcaster_id is required")
	}
	def, err := b.Default.toDomain()
	if err != nil {
		return domain.BroadcasterRule{}, fmt.Errorf("default_response: %w", err)
	}

	rule := domain.BroadcasterRule{
		BroadcasterID:   b.BroadcasterID,
		BroadcasterName: b.BroadcasterName,
		Enabled:         b.Enabled,
		MaxReactions:    b.MaxReactions,
		Default:         def,
	}
	for i, t := range b.Triggers {
		trig, err := t.toDomain()
		if err != nil {
			return domain.BroadcasterRule{}, fmt.Errorf("triggers[%d]: %w", i, err)
		}
		rule.Triggers = append(rule.Triggers, trig)
	}
	return rule, nil
}

func (t triggerDoc) toDomain() (domain.Trigger, error) {
	if t.ID == "" {
		return domain.Trigger{}, fmt.Errorf("id is required")
	}
	mode, err := parseMode(t.Mode)
	if err != nil {
		return domain.Trigger{}, fmt.Errorf("trigger %s: %w", t.ID, err)
	}
	kind, err := parseKind(t.Kind)
	if err != nil {
		return domain.Trigger{}, fmt.Errorf("trigger %s: %w", t.ID, err)
	}

	probability := defaultProbability
	if t.Probability != nil {
		probability = *t.Probability
	}
	if probability < 0 || probability > 100 {
		return domain.Trigger{}, fmt.Errorf("trigger %s: probability %d outside [0,100]", t.ID, probability)
	}

	return domain.Trigger{
		ID:           t.ID,
		Enabled:      t.Enabled,
		Keywords:     t.Keywords,
		Mode:         mode,
		Kind:         kind,
		Templates:    t.Templates,
		Probability:  probability,
		MaxReactions: t.MaxReactions,
	}, nil
}

func (s specialTriggerDoc) toDomain() (domain.SpecialTrigger, error) {
	trig, err := s.triggerDoc.toDomain()
	if err != nil {
		return domain.SpecialTrigger{}, err
	}

	st := domain.SpecialTrigger{Trigger: trig, IgnoreAllLimits: s.IgnoreAllLimits}
	if s.Action != nil {
		if s.Action.Program == "" {
			return domain.SpecialTrigger{}, fmt.Errorf("trigger %s: action.program is required", trig.ID)
		}
		st.Action = &domain.Action{Program: s.Action.Program, Args: s.Action.Args}
	}
	return st, nil
}

func parseMode(s string) (domain.MatchMode, error) {
	switch domain.MatchMode(s) {
	case "", domain.MatchAll:
		return domain.MatchAll, nil
	case domain.MatchAny:
		return domain.MatchAny, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

func parseKind(s string) (domain.ResponseKind, error) {
	switch domain.ResponseKind(s) {
	case "", domain.ResponseStatic:
		return domain.ResponseStatic, nil
	case domain.ResponseAI:
		return domain.ResponseAI, nil
	default:
		return "", fmt.Errorf("unknown response kind %q", s)
	}
}

func responseFromDomain(d domain.DefaultResponse) responseDoc {
	return responseDoc{Enabled: d.Enabled, Kind: string(d.Kind), Templates: d.Templates}
}

func triggerFromDomain(t domain.Trigger) triggerDoc {
	p := t.Probability
	return triggerDoc{
		ID:           t.ID,
		Enabled:      t.Enabled,
		Keywords:     t.Keywords,
		Mode:         string(t.Mode),
		Kind:         string(t.Kind),
		Templates:    t.Templates,
		Probability:  &p,
		MaxReactions: t.MaxReactions,
	}
}
