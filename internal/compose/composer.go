package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/commentreply/internal/domain"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultMaxRunes = 200
)

// Picker yields uniform integers in [0, n).
type Picker interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

type Option func(*Composer)

// WithGenerator enables AI rules. Without it they never produce a reply.
func WithGenerator(g domain.TextGenerator) Option {
	return func(c *Composer) { c.generator = g }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Composer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRunes caps generated replies. n <= 0 keeps the default.
func WithMaxRunes(n int) Option {
	return func(c *Composer) {
		if n > 0 {
			c.maxRunes = n
		}
	}
}

func WithPicker(p Picker) Option {
	return func(c *Composer) { c.pick = p }
}

// WithLocation sets the time zone of the time, date and datetime placeholders.
func WithLocation(loc *time.Location) Option {
	return func(c *Composer) { c.loc = loc }
}

type Composer struct {
	clock     clockwork.Clock
	generator domain.TextGenerator
	pick      Picker
	loc       *time.Location
	timeout   time.Duration
	maxRunes  int
}

func New(clock clockwork.Clock, opts ...Option) *Composer {
	c := &Composer{
		clock:    clock,
		pick:     globalRand{},
		loc:      time.Local,
		timeout:  defaultTimeout,
		maxRunes: defaultMaxRunes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Vars returns the placeholder table for c at the current time.
func (c *Composer) Vars(rule domain.ResponseRule, comment domain.Comment) Vars {
	return NewVars(comment, rule.Broadcaster, c.clock.Now().In(c.loc))
}

// Render produces the reply text for rule. It returns an error wrapping
// domain.ErrNoReply whenever nothing should be sent.
func (c *Composer) Render(ctx context.Context, rule domain.ResponseRule, comment domain.Comment) (string, error) {
	tpl, ok := c.choose(rule.Templates)
	if !ok {
		return "", fmt.Errorf("%w: no template", domain.ErrNoReply)
	}
	text := Expand(tpl, c.Vars(rule, comment))

	if rule.Kind == domain.ResponseAI {
		return c.generate(ctx, text)
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty template", domain.ErrNoReply)
	}
	return text, nil
}

func (c *Composer) choose(templates []string) (string, bool) {
	candidates := make([]string, 0, len(templates))
	for _, t := range templates {
		if t != "" {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[c.pick.IntN(len(candidates))], true
}

func (c *Composer) generate(ctx context.Context, prompt string) (string, error) {
	if c.generator == nil {
		return "", fmt.Errorf("%w: %w", domain.ErrNoReply, domain.ErrGeneratorDisabled)
	}

	ctx, cancel := clockwork.WithTimeout(ctx, c.clock, c.timeout)
	defer cancel()

	out, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.WarnContext(ctx, "Reply generation timed out", "timeout", c.timeout)
		} else {
			slog.WarnContext(ctx, "Reply generation failed", "error", err)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrNoReply, err)
	}

	reply := Truncate(OneLine(out), c.maxRunes)
	if reply == "" {
		return "", fmt.Errorf("%w: empty generation", domain.ErrNoReply)
	}
	return reply, nil
}

// OneLine collapses every run of whitespace, line breaks included, into one space.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
