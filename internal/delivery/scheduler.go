package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/commentreply/internal/adapter/metrics"
	"github.com/pscheid92/commentreply/internal/domain"
	"github.com/pscheid92/commentreply/internal/protocol"
)

const defaultSendTimeout = 10 * time.Second

var ErrSchedulerStopped = errors.New("delivery scheduler stopped")

// Report summarises one delivery. Err holds the first failure, if any.
type Report struct {
	SessionID string
	Chunks    int
	Sent      int
	Failed    int
	Err       error
}

type Option func(*Scheduler)

func WithChunkLimit(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.limit = n
		}
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// queue serialises every delivery to one transport.
type queue struct {
	pool   *workerpool.WorkerPool
	ctx    context.Context
	cancel context.CancelFunc
}

type Scheduler struct {
	sessions    domain.SessionDirectory
	clock       clockwork.Clock
	metrics     *metrics.DeliveryMetrics
	limit       int
	sendTimeout time.Duration

	mu      sync.Mutex
	queues  map[string]*queue
	stopped bool
}

func NewScheduler(sessions domain.SessionDirectory, clock clockwork.Clock, m *metrics.DeliveryMetrics, opts ...Option) *Scheduler {
	s := &Scheduler{
		sessions:    sessions,
		clock:       clock,
		metrics:     m,
		limit:       DefaultChunkLimit,
		sendTimeout: defaultSendTimeout,
		queues:      make(map[string]*queue),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deliver queues text for the session known by sessionID (instance id or handle) and
// returns a channel that receives exactly one Report once every chunk was attempted.
// Consecutive chunks are separated by delay.
func (s *Scheduler) Deliver(ctx context.Context, sessionID, text string, delay time.Duration) <-chan Report {
	reportCh := make(chan Report, 1)
	chunks := Split(text, s.limit)

	session, ok := s.sessions.Lookup(sessionID)
	if !ok || session.Sender == nil {
		s.metrics.ChunksSent.WithLabelValues("failed").Add(float64(len(chunks)))
		reportCh <- Report{SessionID: sessionID, Chunks: len(chunks), Failed: len(chunks), Err: domain.ErrSessionNotFound}
		return reportCh
	}

	// Values such as the correlation id survive; the caller's cancellation does not.
	logCtx := context.WithoutCancel(ctx)
	err := s.enqueue(session.Handle, func(queueCtx context.Context) {
		reportCh <- s.run(logCtx, queueCtx, session, chunks, delay)
	})
	if err != nil {
		reportCh <- Report{SessionID: sessionID, Chunks: len(chunks), Failed: len(chunks), Err: err}
	}
	return reportCh
}

// enqueue submits task to the queue of handle, creating the queue on first use.
// Submit must not race with the StopWait in Cancel, so it runs under mu.
func (s *Scheduler) enqueue(handle string, task func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}
	q, ok := s.queues[handle]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		q = &queue{pool: workerpool.New(1), ctx: ctx, cancel: cancel}
		s.queues[handle] = q
		s.metrics.QueuedPools.Inc()
	}
	q.pool.Submit(func() { task(q.ctx) })
	return nil
}

func (s *Scheduler) run(logCtx, queueCtx context.Context, session domain.Session, chunks []string, delay time.Duration) Report {
	rep := Report{SessionID: session.ID(), Chunks: len(chunks)}
	defer s.metrics.Deliveries.Inc()

	// A failed send drops the session and its transport; remaining chunks are still attempted.
	closed := false

	for i, chunk := range chunks {
		if i > 0 && delay > 0 {
			select {
			case <-s.clock.After(delay):
			case <-queueCtx.Done():
				return s.abandon(rep, queueCtx.Err())
			}
		}
		if queueCtx.Err() != nil {
			return s.abandon(rep, queueCtx.Err())
		}

		err := s.send(queueCtx, session, protocol.SendComment{Text: chunk, Chunk: i + 1, Total: len(chunks)})
		if err != nil {
			rep.Failed++
			if rep.Err == nil {
				rep.Err = err
			}
			s.metrics.ChunksSent.WithLabelValues("failed").Inc()
			slog.WarnContext(logCtx, "Reply chunk send failed",
				"session_id", session.ID(), "chunk", i+1, "total", len(chunks), "error", err)
			if !closed {
				closed = true
				s.sessions.Remove(session.Handle)
				if cerr := session.Sender.Close(); cerr != nil {
					slog.DebugContext(logCtx, "Closing failed transport", "session_id", session.ID(), "error", cerr)
				}
			}
			continue
		}
		rep.Sent++
		s.metrics.ChunksSent.WithLabelValues("sent").Inc()
	}

	slog.DebugContext(logCtx, "Reply delivered", "session_id", session.ID(), "chunks", rep.Chunks, "failed", rep.Failed)
	return rep
}

func (s *Scheduler) send(ctx context.Context, session domain.Session, msg protocol.SendComment) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	start := s.clock.Now()
	err = session.Sender.Send(ctx, frame)
	s.metrics.SendDuration.Observe(s.clock.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("send chunk %d/%d: %w", msg.Chunk, msg.Total, err)
	}
	return nil
}

func (s *Scheduler) abandon(rep Report, err error) Report {
	pending := rep.Chunks - rep.Sent - rep.Failed
	rep.Failed += pending
	if rep.Err == nil {
		rep.Err = err
	}
	s.metrics.ChunksSent.WithLabelValues("cancelled").Add(float64(pending))
	return rep
}

// Cancel drops the queue of the transport behind handle. Pending deliveries on it report
// context.Canceled; queues of other sessions are unaffected.
func (s *Scheduler) Cancel(handle string) {
	s.mu.Lock()
	q, ok := s.queues[handle]
	delete(s.queues, handle)
	s.mu.Unlock()

	if !ok {
		return
	}
	s.metrics.QueuedPools.Dec()
	q.cancel()
	go q.pool.StopWait()
}

// Stop cancels every queue and waits for the running deliveries to report.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	queues := s.queues
	s.queues = make(map[string]*queue)
	s.mu.Unlock()

	for _, q := range queues {
		q.cancel()
	}
	for _, q := range queues {
		q.pool.StopWait()
		s.metrics.QueuedPools.Dec()
	}
}
