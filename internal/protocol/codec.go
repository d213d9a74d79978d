package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownKind = errors.New("unknown message type")
)

// DecodeError describes why an inbound frame was rejected. It unwraps to
// ErrMalformed or ErrUnknownKind.
type DecodeError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("%v (%s): %s", e.Err, e.Kind, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func malformed(kind Kind, reason string) *DecodeError {
	return &DecodeError{Kind: kind, Reason: reason, Err: ErrMalformed}
}

type envelope struct {
	Type Kind `json:"type"`
}

// Decode parses one frame into its concrete Inbound type and checks required fields.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, malformed("", "invalid JSON")
	}
	if env.Type == "" {
		return nil, malformed("", "missing type")
	}

	switch env.Type {
	case KindIdentify:
		var m Identify
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.InstanceID == "" {
			return nil, malformed(env.Type, "instance_id is required")
		}
		return m, nil
	case KindComment:
		var m Comment
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.UserID == "" {
			return nil, malformed(env.Type, "user_id is required")
		}
		return m, nil
	case KindPing:
		return Ping{}, nil
	case KindListSessions:
		var m ListSessions
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case KindDirectSend:
		var m DirectSend
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.TargetInstanceID == "" {
			return nil, malformed(env.Type, "target_instance_id is required")
		}
		if m.Text == "" {
			return nil, malformed(env.Type, "text is required")
		}
		return m, nil
	case KindSendResult:
		var m SendResult
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case KindReloadConfig:
		var m ReloadConfig
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case KindInfoResponse:
		var m InfoResponse
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.RequestID == "" {
			return nil, malformed(env.Type, "request_id is required")
		}
		return m, nil
	default:
		return nil, &DecodeError{Kind: env.Type, Reason: "not supported", Err: ErrUnknownKind}
	}
}

// PeekKind returns the "type" discriminator of a frame without decoding the rest.
func PeekKind(data []byte) (Kind, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", malformed("", "invalid JSON")
	}
	if env.Type == "" {
		return "", malformed("", "missing type")
	}
	return env.Type, nil
}

func unmarshal(data []byte, m Inbound) error {
	if err := json.Unmarshal(data, m); err != nil {
		return malformed(m.Kind(), err.Error())
	}
	return nil
}

// Frame is any message carrying a kind, inbound or outbound.
type Frame interface {
	Kind() Kind
}

// Encode renders m as a JSON object with its "type" discriminator first.
func Encode(m Frame) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}

	out := make([]byte, 0, len(body)+len(m.Kind())+12)
	out = append(out, `{"type":`...)
	out = strconv.AppendQuote(out, string(m.Kind()))
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
		return out, nil
	}
	return append(out, '}'), nil
}
