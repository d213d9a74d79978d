package protocol

// Inbound is a frame received from a client.
type Inbound interface {
	Kind() Kind
	inbound()
}

type Identify struct {
	InstanceID     string `json:"instance_id"`
	BroadcastID    string `json:"broadcast_id"`
	BroadcastTitle string `json:"broadcast_title"`
	ClientKind     string `json:"client_kind"`
}

type Comment struct {
	UserID        string `json:"user_id"`
	UserName      string `json:"user_name"`
	Text          string `json:"text"`
	No            int    `json:"no"`
	BroadcastID   string `json:"broadcast_id"`
	InstanceID    string `json:"instance_id"`
	BroadcasterID string `json:"broadcaster_id,omitempty"`
}

type Ping struct{}

// ListSessions asks for the live sessions, optionally narrowed to one broadcast
// and to reply-capable clients.
type ListSessions struct {
	BroadcastID string `json:"broadcast_id,omitempty"`
	ReplierOnly bool   `json:"replier_only,omitempty"`
}

type DirectSend struct {
	TargetInstanceID string `json:"target_instance_id"`
	Text             string `json:"text"`
}

// SendResult is a client's report on a send_comment it was asked to post.
type SendResult struct {
	InstanceID string `json:"instance_id"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
}

// ReloadConfig reloads every monitored user, or only UserID when set.
type ReloadConfig struct {
	UserID string `json:"user_id,omitempty"`
}

type InfoResponse struct {
	RequestID      string `json:"request_id"`
	BroadcastID    string `json:"broadcast_id"`
	BroadcastTitle string `json:"broadcast_title"`
}

func (Identify) Kind() Kind     { return KindIdentify }
func (Comment) Kind() Kind      { return KindComment }
func (Ping) Kind() Kind         { return KindPing }
func (ListSessions) Kind() Kind { return KindListSessions }
func (DirectSend) Kind() Kind   { return KindDirectSend }
func (SendResult) Kind() Kind   { return KindSendResult }
func (ReloadConfig) Kind() Kind { return KindReloadConfig }
func (InfoResponse) Kind() Kind { return KindInfoResponse }

func (Identify) inbound()     {}
func (Comment) inbound()      {}
func (Ping) inbound()         {}
func (ListSessions) inbound() {}
func (DirectSend) inbound()   {}
func (SendResult) inbound()   {}
func (ReloadConfig) inbound() {}
func (InfoResponse) inbound() {}
