package protocol

// Kind is the value of the "type" discriminator carried by every frame.
type Kind string

// Inbound kinds.
const (
	KindIdentify     Kind = "identify"
	KindComment      Kind = "comment"
	KindPing         Kind = "ping"
	KindListSessions Kind = "list_sessions"
	KindDirectSend   Kind = "direct_send"
	KindSendResult   Kind = "send_result"
	KindReloadConfig Kind = "reload_config"
	KindInfoResponse Kind = "info_response"
)

// Outbound kinds.
const (
	KindConnected            Kind = "connected"
	KindWelcome              Kind = "welcome"
	KindCommentAck           Kind = "comment_ack"
	KindSessionList          Kind = "session_list"
	KindDirectSendResponse   Kind = "direct_send_response"
	KindPong                 Kind = "pong"
	KindConfigReloadResponse Kind = "config_reload_response"
	KindInfoRequest          Kind = "info_request"
	KindSendComment          Kind = "send_comment"
	KindError                Kind = "error"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)
