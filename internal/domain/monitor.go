package domain

// MatchMode controls how a trigger's keywords combine.
type MatchMode string

const (
	MatchAll MatchMode = "and"
	MatchAny MatchMode = "or"
)

// ResponseKind selects between a static template and externally generated text.
type ResponseKind string

const (
	ResponseStatic ResponseKind = "static"
	ResponseAI     ResponseKind = "ai"
)

// DefaultResponse is the fallback reply of a user or a broadcaster rule.
type DefaultResponse struct {
	Enabled   bool
	Kind      ResponseKind
	Templates []string
}

// Usable reports whether the response is enabled and has something to render.
func (d DefaultResponse) Usable() bool {
	if !d.Enabled {
		return false
	}
	for _, t := range d.Templates {
		if t != "" {
			return true
		}
	}
	return false
}

// Trigger is an ordinary keyword rule scoped to one broadcaster rule.
type Trigger struct {
	ID           string
	Enabled      bool
	Keywords     []string
	Mode         MatchMode
	Kind         ResponseKind
	Templates    []string
	Probability  int
	MaxReactions int
}

// Action is an external program run when a special trigger fires.
type Action struct {
	Program string
	Args    []string
}

// SpecialTrigger is evaluated before every ordinary rate-limit scope.
type SpecialTrigger struct {
	Trigger
	IgnoreAllLimits bool
	Action          *Action
}

// BroadcasterRule holds the rules for one (monitored user, broadcaster) pair.
type BroadcasterRule struct {
	BroadcasterID   string
	BroadcasterName string
	Enabled         bool
	MaxReactions    int
	Default         DefaultResponse
	Triggers        []Trigger
}

// MonitoredUser is one author under active rule evaluation.
type MonitoredUser struct {
	UserID                 string
	DisplayName            string
	Enabled                bool
	SpecialTriggersEnabled bool
	MaxReactions           int
	Default                DefaultResponse
	Broadcasters           []BroadcasterRule
	SpecialTriggers        []SpecialTrigger
}
