package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pscheid92/commentreply/internal/domain"
	"github.com/pscheid92/commentreply/internal/protocol"
)

var errServer = errors.New("server error")

// client is an identified observer session used to issue dispatch requests.
type client struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func dial(ctx context.Context, url, instanceID string, timeout time.Duration) (*client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	c := &client{conn: conn, timeout: timeout}

	var connected protocol.Connected
	if err := c.await(protocol.KindConnected, &connected); err != nil {
		_ = conn.Close()
		return nil, err
	}

	identify := protocol.Identify{InstanceID: instanceID, ClientKind: string(domain.ClientKindObserver)}
	var welcome protocol.Welcome
	if err := c.request(identify, protocol.KindWelcome, &welcome); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

// request sends frame and decodes the first reply of kind want into out.
func (c *client) request(frame protocol.Frame, want protocol.Kind, out any) error {
	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", frame.Kind(), err)
	}
	return c.await(want, out)
}

// await skips unrelated frames until one of kind want or an error frame arrives.
func (c *client) await(want protocol.Kind, out any) error {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", want, err)
		}

		kind, err := protocol.PeekKind(data)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", want, err)
		}

		switch kind {
		case want:
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("failed to decode %s: %w", want, err)
			}
			return nil
		case protocol.KindError:
			var e protocol.Error
			_ = json.Unmarshal(data, &e)
			return fmt.Errorf("%w: %s", errServer, e.Message)
		}
	}
}

func (c *client) Sessions(broadcastID string, replierOnly bool) ([]protocol.SessionEntry, error) {
	var list protocol.SessionList
	err := c.request(protocol.ListSessions{BroadcastID: broadcastID, ReplierOnly: replierOnly}, protocol.KindSessionList, &list)
	return list.Sessions, err
}

func (c *client) Send(target, text string) error {
	var resp protocol.DirectSendResponse
	if err := c.request(protocol.DirectSend{TargetInstanceID: target, Text: text}, protocol.KindDirectSendResponse, &resp); err != nil {
		return err
	}
	if resp.Status != protocol.StatusOK {
		return fmt.Errorf("%w: %s", errServer, resp.Message)
	}
	return nil
}

func (c *client) Reload(userID string) (int, error) {
	var resp protocol.ConfigReloadResponse
	if err := c.request(protocol.ReloadConfig{UserID: userID}, protocol.KindConfigReloadResponse, &resp); err != nil {
		return 0, err
	}
	if resp.Status != protocol.StatusOK {
		return 0, fmt.Errorf("%w: %s", errServer, resp.Message)
	}
	return resp.Users, nil
}
