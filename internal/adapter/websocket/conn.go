package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pscheid92/commentreply/internal/domain"
)

const (
	sendQueueSize = 32
	writeTimeout  = 5 * time.Second
)

type writeReq struct {
	frame  []byte
	result chan error
}

// conn owns the write side of one websocket. A single writer goroutine serialises
// every frame; Send waits for the frame to hit the socket, post does not.
type conn struct {
	ws     *websocket.Conn
	sendCh chan writeReq
	done   chan struct{}
	once   sync.Once
}

func newConn(ws *websocket.Conn) *conn {
	c := &conn{
		ws:     ws,
		sendCh: make(chan writeReq, sendQueueSize),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *conn) run() {
	for {
		select {
		case req := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.ws.WriteMessage(websocket.TextMessage, req.frame)
			if req.result != nil {
				req.result <- err
			}
			if err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Send implements domain.Sender.
func (c *conn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
	}

	req := writeReq{frame: frame, result: make(chan error, 1)}
	select {
	case c.sendCh <- req:
	case <-c.done:
		return domain.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-c.done:
		return domain.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues a frame without waiting. A full queue drops the frame.
func (c *conn) post(frame []byte) error {
	select {
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
	}
	select {
	case c.sendCh <- writeReq{frame: frame}:
		return nil
	default:
		return domain.ErrSendQueueFull
	}
}

// Close stops the writer and closes the socket, which also ends the read loop.
func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}
