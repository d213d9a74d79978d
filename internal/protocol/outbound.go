package protocol

import "time"

// Outbound is a frame sent to a client.
type Outbound interface {
	Kind() Kind
	outbound()
}

// Connected is sent right after the upgrade with the temporary handle.
type Connected struct {
	Handle string `json:"handle"`
}

type Welcome struct {
	BroadcastID string `json:"broadcast_id"`
}

type CommentAck struct {
	No int `json:"no"`
}

type SessionEntry struct {
	ID          string    `json:"id"`
	BroadcastID string    `json:"broadcast_id"`
	Title       string    `json:"title"`
	Address     string    `json:"address"`
	ConnectedAt time.Time `json:"connected_at"`
	ClientKind  string    `json:"client_kind"`
}

type SessionList struct {
	Sessions []SessionEntry `json:"sessions"`
}

type DirectSendResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Pong struct{}

type ConfigReloadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Users   int    `json:"users"`
}

type InfoRequest struct {
	RequestID string `json:"request_id"`
}

// SendComment asks a reply-capable client to post Text. Chunk is 1-based.
type SendComment struct {
	Text  string `json:"text"`
	Chunk int    `json:"chunk"`
	Total int    `json:"total"`
}

type Error struct {
	Message string `json:"message"`
}

func (Connected) Kind() Kind            { return KindConnected }
func (Welcome) Kind() Kind              { return KindWelcome }
func (CommentAck) Kind() Kind           { return KindCommentAck }
func (SessionList) Kind() Kind          { return KindSessionList }
func (DirectSendResponse) Kind() Kind   { return KindDirectSendResponse }
func (Pong) Kind() Kind                 { return KindPong }
func (ConfigReloadResponse) Kind() Kind { return KindConfigReloadResponse }
func (InfoRequest) Kind() Kind          { return KindInfoRequest }
func (SendComment) Kind() Kind          { return KindSendComment }
func (Error) Kind() Kind                { return KindError }

func (Connected) outbound()            {}
func (Welcome) outbound()              {}
func (CommentAck) outbound()           {}
func (SessionList) outbound()          {}
func (DirectSendResponse) outbound()   {}
func (Pong) outbound()                 {}
func (ConfigReloadResponse) outbound() {}
func (InfoRequest) outbound()          {}
func (SendComment) outbound()          {}
func (Error) outbound()                {}
