package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/commentreply/internal/adapter/metrics"
	"github.com/pscheid92/commentreply/internal/app"
	"github.com/pscheid92/commentreply/internal/domain"
	"github.com/pscheid92/commentreply/internal/platform/correlation"
	"github.com/pscheid92/commentreply/internal/protocol"
)

const defaultReadLimit = 64 << 10

// Service is the application layer as seen from a connection.
type Service interface {
	HandleComment(ctx context.Context, senderID string, c domain.Comment) app.Outcome
	DirectSend(ctx context.Context, targetID, text string) error
	ListSessions(broadcastID string, replierOnly bool) []domain.Session
	Reload(ctx context.Context, userID string) (domain.ReloadResult, error)
}

// Registry is the connection inventory.
type Registry interface {
	Register(s domain.Session) (domain.Session, error)
	Promote(handle, instanceID string, info domain.SessionInfo) (domain.Session, error)
	UpdateInfo(id string, info domain.SessionInfo) bool
	Remove(id string)
}

// DeliveryCanceler drops the pending deliveries of a closed transport.
type DeliveryCanceler interface {
	Cancel(handle string)
}

type Option func(*Handler)

func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = fn }
}

// WithInfoWindow sets how long an info request waits for its response.
func WithInfoWindow(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.info = newInfoTracker(d)
		}
	}
}

func WithReadLimit(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithConnectionLimits caps open connections per instance and per remote IP.
// Zero disables a cap.
func WithConnectionLimits(maxTotal, maxPerIP int) Option {
	return func(h *Handler) { h.limits = newConnLimits(maxTotal, maxPerIP) }
}

// Handler upgrades viewer-client connections and runs one read loop per connection.
type Handler struct {
	service    Service
	registry   Registry
	deliveries DeliveryCanceler
	clock      clockwork.Clock
	metrics    *metrics.WebSocketMetrics
	info       *infoTracker
	upgrader   websocket.Upgrader
	readLimit  int64
	limits     *connLimits
}

func NewHandler(service Service, registry Registry, deliveries DeliveryCanceler, clock clockwork.Clock, m *metrics.WebSocketMetrics, opts ...Option) *Handler {
	h := &Handler{
		service:    service,
		registry:   registry,
		deliveries: deliveries,
		clock:      clock,
		metrics:    m,
		info:       newInfoTracker(defaultInfoWindow),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(nil, false),
		},
		readLimit: defaultReadLimit,
		limits:    newConnLimits(0, 0),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r.RemoteAddr)
	if ok, reason := h.limits.acquire(ip); !ok {
		h.metrics.ConnectionsRejected.WithLabelValues(string(reason)).Inc()
		slog.Warn("WebSocket connection rejected", "remote_addr", r.RemoteAddr, "reason", reason)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	defer h.limits.release(ip)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Failed to upgrade WebSocket", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(h.readLimit)

	c := newConn(ws)
	session, err := h.registry.Register(domain.Session{RemoteAddr: r.RemoteAddr, ConnectedAt: h.clock.Now(), Sender: c})
	if err != nil {
		slog.Warn("Failed to register session", "remote_addr", r.RemoteAddr, "error", err)
		_ = c.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	cl := &client{
		h:        h,
		conn:     c,
		handle:   session.Handle,
		comments: workerpool.New(1),
		cancel:   cancel,
	}
	h.metrics.ActiveConnections.Inc()
	slog.Debug("Client connected", "handle", cl.handle, "remote_addr", r.RemoteAddr)

	cl.serve(correlation.WithSession(ctx, cl.handle))
}

// client is the server side of one connection. Only the read loop touches state.
type client struct {
	h        *Handler
	conn     *conn
	handle   string
	state    handshakeState
	comments *workerpool.WorkerPool
	tasks    sync.WaitGroup
	cancel   context.CancelFunc
}

func (cl *client) serve(ctx context.Context) {
	defer cl.close()

	cl.reply(ctx, protocol.Connected{Handle: cl.handle})

	for {
		_, data, err := cl.conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.DebugContext(ctx, "Client read failed", "error", err)
			}
			return
		}
		if !cl.dispatchSafe(ctx, data) {
			return
		}
	}
}

func (cl *client) close() {
	cl.cancel()
	cl.comments.Stop()
	cl.tasks.Wait()

	cl.h.registry.Remove(cl.handle)
	cl.h.deliveries.Cancel(cl.handle)
	_ = cl.conn.Close()

	cl.h.metrics.ActiveConnections.Dec()
	slog.Debug("Client disconnected", "handle", cl.handle)
}

// dispatchSafe handles one frame. A panic is contained to this connection, which the
// caller then closes.
func (cl *client) dispatchSafe(ctx context.Context, data []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			cl.recovered(ctx, r)
			ok = false
		}
	}()
	cl.dispatch(ctx, data)
	return true
}

func (cl *client) recovered(ctx context.Context, r any) {
	cl.h.metrics.HandlerPanics.Inc()
	slog.ErrorContext(ctx, "Panic in message handler", "panic", r, "stack", string(debug.Stack()))
}

func (cl *client) dispatch(ctx context.Context, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		cl.rejectFrame(ctx, err)
		return
	}
	cl.h.metrics.MessagesReceived.WithLabelValues(string(msg.Kind())).Inc()

	if !cl.state.accepts(msg.Kind()) {
		cl.replyError(ctx, cl.state.refusal(msg.Kind()))
		return
	}

	switch m := msg.(type) {
	case protocol.Identify:
		cl.identify(ctx, m)
	case protocol.Comment:
		cl.comment(ctx, m)
	case protocol.Ping:
		cl.reply(ctx, protocol.Pong{})
	case protocol.ListSessions:
		cl.listSessions(ctx, m)
	case protocol.DirectSend:
		cl.directSend(ctx, m)
	case protocol.SendResult:
		cl.sendResult(ctx, m)
	case protocol.ReloadConfig:
		cl.reloadConfig(ctx, m)
	case protocol.InfoResponse:
		cl.infoResponse(ctx, m)
	}
}

func (cl *client) rejectFrame(ctx context.Context, err error) {
	reason := "malformed"
	if errors.Is(err, protocol.ErrUnknownKind) {
		reason = "unknown_kind"
		slog.WarnContext(ctx, "Ignoring message of unknown type", "error", err)
	} else {
		slog.DebugContext(ctx, "Rejected malformed message", "error", err)
	}
	cl.h.metrics.DecodeErrors.WithLabelValues(reason).Inc()
	cl.replyError(ctx, err.Error())
}

func (cl *client) identify(ctx context.Context, m protocol.Identify) {
	info := domain.SessionInfo{
		BroadcastID:    m.BroadcastID,
		BroadcastTitle: m.BroadcastTitle,
		Kind:           domain.ParseClientKind(m.ClientKind),
	}
	session, err := cl.h.registry.Promote(cl.handle, m.InstanceID, info)
	if err != nil {
		slog.WarnContext(ctx, "Handshake failed", "instance_id", m.InstanceID, "error", err)
		cl.replyError(ctx, err.Error())
		return
	}
	cl.state = stateIdentified

	slog.InfoContext(ctx, "Session identified",
		"instance_id", m.InstanceID, "broadcast_id", session.BroadcastID, "client_kind", session.Kind)
	cl.reply(ctx, protocol.Welcome{BroadcastID: session.BroadcastID})

	if session.BroadcastID == "" || session.BroadcastTitle == "" {
		cl.reply(ctx, protocol.InfoRequest{RequestID: cl.h.info.open(cl.handle)})
	}
}

func (cl *client) comment(ctx context.Context, m protocol.Comment) {
	c := domain.Comment{
		No:            m.No,
		UserID:        m.UserID,
		UserName:      m.UserName,
		Text:          m.Text,
		BroadcastID:   m.BroadcastID,
		BroadcasterID: m.BroadcasterID,
		InstanceID:    m.InstanceID,
		ReceivedAt:    cl.h.clock.Now(),
	}
	cl.reply(ctx, protocol.CommentAck{No: m.No})

	ctx = correlation.WithID(ctx, correlation.NewID())
	cl.comments.Submit(func() {
		defer cl.contain(ctx)
		cl.h.service.HandleComment(ctx, cl.handle, c)
	})
}

func (cl *client) listSessions(ctx context.Context, m protocol.ListSessions) {
	sessions := cl.h.service.ListSessions(m.BroadcastID, m.ReplierOnly)
	entries := make([]protocol.SessionEntry, 0, len(sessions))
	for _, s := range sessions {
		entries = append(entries, protocol.SessionEntry{
			ID:          s.ID(),
			BroadcastID: s.BroadcastID,
			Title:       s.BroadcastTitle,
			Address:     s.RemoteAddr,
			ConnectedAt: s.ConnectedAt,
			ClientKind:  clientKindLabel(s),
		})
	}
	cl.reply(ctx, protocol.SessionList{Sessions: entries})
}

func clientKindLabel(s domain.Session) string {
	if !s.Identified() {
		return "unidentified"
	}
	return string(s.Kind)
}

func (cl *client) directSend(ctx context.Context, m protocol.DirectSend) {
	cl.background(ctx, func() {
		resp := protocol.DirectSendResponse{Status: protocol.StatusOK, Message: "sent"}
		if err := cl.h.service.DirectSend(ctx, m.TargetInstanceID, m.Text); err != nil {
			slog.InfoContext(ctx, "Direct send failed", "target", m.TargetInstanceID, "error", err)
			resp = protocol.DirectSendResponse{Status: protocol.StatusError, Message: err.Error()}
		}
		cl.reply(ctx, resp)
	})
}

func (cl *client) sendResult(ctx context.Context, m protocol.SendResult) {
	if !m.Success {
		slog.WarnContext(ctx, "Client failed to post comment", "instance_id", m.InstanceID, "message", m.Message)
		return
	}
	slog.DebugContext(ctx, "Client posted comment", "instance_id", m.InstanceID)
}

func (cl *client) reloadConfig(ctx context.Context, m protocol.ReloadConfig) {
	cl.background(ctx, func() {
		res, err := cl.h.service.Reload(ctx, m.UserID)
		if err != nil {
			slog.ErrorContext(ctx, "Config reload failed", "user_id", m.UserID, "error", err)
			cl.reply(ctx, protocol.ConfigReloadResponse{Status: protocol.StatusError, Message: err.Error()})
			return
		}
		cl.reply(ctx, protocol.ConfigReloadResponse{Status: protocol.StatusOK, Message: "reloaded", Users: res.Users})
	})
}

func (cl *client) infoResponse(ctx context.Context, m protocol.InfoResponse) {
	handle, ok := cl.h.info.settle(m.RequestID)
	if !ok || handle != cl.handle {
		slog.DebugContext(ctx, "Ignoring info response with unknown request id", "request_id", m.RequestID)
		return
	}
	cl.h.registry.UpdateInfo(cl.handle, domain.SessionInfo{BroadcastID: m.BroadcastID, BroadcastTitle: m.BroadcastTitle})
}

// background runs fn off the read loop; close waits for it.
func (cl *client) background(ctx context.Context, fn func()) {
	cl.tasks.Add(1)
	go func() {
		defer cl.tasks.Done()
		defer cl.contain(ctx)
		fn()
	}()
}

// contain recovers a panic outside the read loop and closes the connection.
func (cl *client) contain(ctx context.Context) {
	if r := recover(); r != nil {
		cl.recovered(ctx, r)
		_ = cl.conn.Close()
	}
}

func (cl *client) replyError(ctx context.Context, message string) {
	cl.reply(ctx, protocol.Error{Message: message})
}

func (cl *client) reply(ctx context.Context, m protocol.Outbound) {
	frame, err := protocol.Encode(m)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode message", "type", m.Kind(), "error", err)
		return
	}
	switch err := cl.conn.post(frame); {
	case errors.Is(err, domain.ErrSendQueueFull):
		slog.WarnContext(ctx, "Disconnecting slow client")
		_ = cl.conn.Close()
	case err != nil:
		slog.DebugContext(ctx, "Dropped message for closed connection", "type", m.Kind())
	}
}
