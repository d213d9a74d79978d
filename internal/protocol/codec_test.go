package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Identify(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"identify","instance_id":"ncv-1","broadcast_id":"lv123","broadcast_title":"Night stream","client_kind":"replier"}`))
	require.NoError(t, err)

	id, ok := msg.(Identify)
	require.True(t, ok)
	assert.Equal(t, "ncv-1", id.InstanceID)
	assert.Equal(t, "lv123", id.BroadcastID)
	assert.Equal(t, "Night stream", id.BroadcastTitle)
	assert.Equal(t, "replier", id.ClientKind)
}

func TestDecode_Comment(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"comment","user_id":"u1","user_name":"Alice","text":"hello","no":42,"broadcast_id":"lv1","instance_id":"ncv-1","broadcaster_id":"b1"}`))
	require.NoError(t, err)

	c, ok := msg.(Comment)
	require.True(t, ok)
	assert.Equal(t, Comment{UserID: "u1", UserName: "Alice", Text: "hello", No: 42, BroadcastID: "lv1", InstanceID: "ncv-1", BroadcasterID: "b1"}, c)
}

func TestDecode_SimpleKinds(t *testing.T) {
	tests := []struct {
		frame string
		want  Inbound
	}{
		{`{"type":"ping"}`, Ping{}},
		{`{"type":"list_sessions"}`, ListSessions{}},
		{`{"type":"list_sessions","broadcast_id":"lv1","replier_only":true}`, ListSessions{BroadcastID: "lv1", ReplierOnly: true}},
		{`{"type":"direct_send","target_instance_id":"ncv-2","text":"hi"}`, DirectSend{TargetInstanceID: "ncv-2", Text: "hi"}},
		{`{"type":"send_result","instance_id":"ncv-2","success":false,"message":"rejected"}`, SendResult{InstanceID: "ncv-2", Message: "rejected"}},
		{`{"type":"reload_config"}`, ReloadConfig{}},
		{`{"type":"reload_config","user_id":"u9"}`, ReloadConfig{UserID: "u9"}},
		{`{"type":"info_response","request_id":"r1","broadcast_id":"lv1","broadcast_title":"t"}`, InfoResponse{RequestID: "r1", BroadcastID: "lv1", BroadcastTitle: "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			msg, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	frames := []string{
		`not json`,
		`{}`,
		`{"type":""}`,
		`{"type":"identify"}`,
		`{"type":"identify","instance_id":""}`,
		`{"type":"comment","text":"no author"}`,
		`{"type":"comment","user_id":"u1","no":"seven"}`,
		`{"type":"direct_send","text":"hi"}`,
		`{"type":"direct_send","target_instance_id":"x"}`,
		`{"type":"info_response"}`,
		`[1,2,3]`,
	}

	for _, frame := range frames {
		t.Run(frame, func(t *testing.T) {
			_, err := Decode([]byte(frame))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)

			var de *DecodeError
			assert.True(t, errors.As(err, &de))
		})
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.NotErrorIs(t, err, ErrMalformed)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, Kind("teleport"), de.Kind)
	assert.Contains(t, err.Error(), "teleport")
}

func TestEncode_TypeComesFirst(t *testing.T) {
	data, err := Encode(Welcome{BroadcastID: "lv1"})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"welcome","broadcast_id":"lv1"}`, string(data))
}

func TestEncode_EmptyPayload(t *testing.T) {
	data, err := Encode(Pong{})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"pong"}`, string(data))
}

func TestEncode_SessionList(t *testing.T) {
	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	data, err := Encode(SessionList{Sessions: []SessionEntry{{
		ID:          "ncv-1",
		BroadcastID: "lv1",
		Title:       "Night stream",
		Address:     "10.0.0.1:5000",
		ConnectedAt: at,
		ClientKind:  "replier",
	}}})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "session_list", got["type"])
	sessions := got["sessions"].([]any)
	require.Len(t, sessions, 1)
	entry := sessions[0].(map[string]any)
	assert.Equal(t, "ncv-1", entry["id"])
	assert.Equal(t, "2026-03-01T20:00:00Z", entry["connected_at"])
}

func TestEncode_EscapesText(t *testing.T) {
	data, err := Encode(SendComment{Text: `say "hi" <3`, Chunk: 1, Total: 2})
	require.NoError(t, err)

	var got SendComment
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, `say "hi" <3`, got.Text)
	assert.Equal(t, 1, got.Chunk)
	assert.Equal(t, 2, got.Total)
}

func TestEncode_InboundDecodesBack(t *testing.T) {
	data, err := Encode(DirectSend{TargetInstanceID: "ncv-1", Text: "hello"})
	require.NoError(t, err)

	m, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, DirectSend{TargetInstanceID: "ncv-1", Text: "hello"}, m)
}

func TestPeekKind(t *testing.T) {
	kind, err := PeekKind([]byte(`{"type":"pong"}`))
	require.NoError(t, err)
	assert.Equal(t, KindPong, kind)

	_, err = PeekKind([]byte(`{}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = PeekKind([]byte(`nope`))
	assert.ErrorIs(t, err, ErrMalformed)
}
