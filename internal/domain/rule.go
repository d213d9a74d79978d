package domain

// Tier records which layer of the precedence order produced a rule.
type Tier string

const (
	TierSpecial            Tier = "special"
	TierTrigger            Tier = "trigger"
	TierBroadcasterDefault Tier = "broadcaster_default"
	TierUserDefault        Tier = "user_default"
)

// BroadcasterContext carries the broadcaster variables available to templates.
type BroadcasterContext struct {
	ID   string
	Name string
}

// ResponseRule is the single rule selected for a comment, ready to be rendered.
type ResponseRule struct {
	Tier        Tier
	TriggerID   string
	Kind        ResponseKind
	Templates   []string
	Broadcaster *BroadcasterContext
	CommentNo   int
	Action      *Action
}
