// Command replyctl lists connected sessions, sends text to a session and
// triggers configuration reloads on a running commentreply server. It also
// validates monitored-user documents offline.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"

	"github.com/pscheid92/commentreply/internal/adapter/configdoc"
	"github.com/pscheid92/commentreply/internal/platform/version"
)

type Options struct {
	URL        string        `long:"url" env:"REPLYCTL_URL" default:"ws://localhost:8080/ws" description:"Websocket endpoint of the server"`
	InstanceID string        `long:"instance-id" env:"REPLYCTL_INSTANCE_ID" description:"Instance id to identify as (default: random)"`
	Timeout    time.Duration `long:"timeout" default:"10s" description:"Timeout for connecting and for each reply"`
	Version    func()        `long:"version" description:"Print version and exit"`
}

type runner struct {
	opts *Options
	out  io.Writer
}

func (r *runner) connect(ctx context.Context) (*client, error) {
	id := r.opts.InstanceID
	if id == "" {
		id = "replyctl-" + uuid.NewString()[:8]
	}
	return dial(ctx, r.opts.URL, id, r.opts.Timeout)
}

type sessionsCommand struct {
	runner      *runner
	BroadcastID string `long:"broadcast" short:"b" description:"Only sessions watching this broadcast"`
	ReplierOnly bool   `long:"replier-only" short:"r" description:"Only reply-capable sessions"`
}

func (c *sessionsCommand) Execute(_ []string) error {
	cl, err := c.runner.connect(context.Background())
	if err != nil {
		return err
	}
	defer func() { _ = cl.Close() }()

	sessions, err := cl.Sessions(c.BroadcastID, c.ReplierOnly)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.runner.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tKIND\tBROADCAST\tTITLE\tADDRESS\tCONNECTED")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.ClientKind, s.BroadcastID, s.Title, s.Address, s.ConnectedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

type sendCommand struct {
	runner *runner
	Target string `long:"to" short:"t" required:"yes" description:"Instance id of the receiving session"`
	Args   struct {
		Text []string `positional-arg-name:"text" required:"1"`
	} `positional-args:"yes"`
}

func (c *sendCommand) Execute(_ []string) error {
	cl, err := c.runner.connect(context.Background())
	if err != nil {
		return err
	}
	defer func() { _ = cl.Close() }()

	if err := cl.Send(c.Target, strings.Join(c.Args.Text, " ")); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.runner.out, "sent to %s\n", c.Target)
	return err
}

type reloadCommand struct {
	runner *runner
	UserID string `long:"user" short:"u" description:"Reload only this monitored user"`
}

func (c *reloadCommand) Execute(_ []string) error {
	cl, err := c.runner.connect(context.Background())
	if err != nil {
		return err
	}
	defer func() { _ = cl.Close() }()

	users, err := cl.Reload(c.UserID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.runner.out, "reloaded, %d monitored users\n", users)
	return err
}

// checkCommand validates a monitored-user document offline and prints it with defaults applied.
type checkCommand struct {
	runner *runner
	Args   struct {
		File string `positional-arg-name:"file" required:"yes"`
	} `positional-args:"yes"`
}

func (c *checkCommand) Execute(_ []string) error {
	data, err := os.ReadFile(c.Args.File)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.Args.File, err)
	}
	user, err := configdoc.Decode(data)
	if err != nil {
		return err
	}
	normalised, err := configdoc.Encode(user)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, normalised, "", "  "); err != nil {
		return err
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(c.runner.out)
	return err
}

func newParser(out io.Writer) *flags.Parser {
	var opts Options
	r := &runner{opts: &opts, out: out}
	opts.Version = func() {
		_, _ = fmt.Fprintln(out, version.Get().String())
		os.Exit(0)
	}

	// flags.Default prints every error, including those returned by Execute.
	parser := flags.NewParser(&opts, flags.Default)
	parser.Name = "replyctl"
	mustAdd(parser, "sessions", "List connected sessions", &sessionsCommand{runner: r})
	mustAdd(parser, "send", "Send text through a reply-capable session", &sendCommand{runner: r})
	mustAdd(parser, "reload", "Reload monitored-user configuration", &reloadCommand{runner: r})
	mustAdd(parser, "check", "Validate a monitored-user document", &checkCommand{runner: r})
	return parser
}

func mustAdd(p *flags.Parser, name, short string, cmd any) {
	if _, err := p.AddCommand(name, short, short, cmd); err != nil {
		panic(err)
	}
}

func main() {
	parser := newParser(os.Stdout)

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
