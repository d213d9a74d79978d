// Package action runs the external programs attached to special triggers.
package action

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/commentreply/internal/domain"
)

const (
	maxOutput = 4 << 10
	waitDelay = 2 * time.Second
)

// Runner starts one process per action and waits for it. The comment is
// passed to the process through COMMENTREPLY_* environment variables.
type Runner struct {
	env   []string
	clock clockwork.Clock
}

func NewRunner(clock clockwork.Clock) *Runner {
	return &Runner{env: os.Environ(), clock: clock}
}

func (r *Runner) Run(ctx context.Context, action domain.Action, c domain.Comment) error {
	cmd := exec.CommandContext(ctx, action.Program, action.Args...)
	cmd.Env = append(append([]string(nil), r.env...), commentEnv(c)...)
	cmd.WaitDelay = waitDelay

	var out limitedBuffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := r.clock.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("action %s: %w", action.Program, ctx.Err())
		}
		return fmt.Errorf("action %s: %w: %s", action.Program, err, strings.TrimSpace(out.String()))
	}

	slog.DebugContext(ctx, "Action finished", "program", action.Program, "duration", r.clock.Since(start))
	return nil
}

func commentEnv(c domain.Comment) []string {
	return []string{
		"COMMENTREPLY_USER_ID=" + c.UserID,
		"COMMENTREPLY_USER_NAME=" + c.UserName,
		"COMMENTREPLY_COMMENT=" + c.Text,
		"COMMENTREPLY_COMMENT_NO=" + strconv.Itoa(c.No),
		"COMMENTREPLY_BROADCAST_ID=" + c.BroadcastID,
		"COMMENTREPLY_BROADCASTER_ID=" + c.BroadcasterID,
		"COMMENTREPLY_INSTANCE_ID=" + c.InstanceID,
	}
}

// limitedBuffer keeps the first maxOutput bytes and discards the rest.
type limitedBuffer struct {
	buf bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := maxOutput - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }
