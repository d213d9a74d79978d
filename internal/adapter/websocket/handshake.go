package websocket

import "github.com/pscheid92/commentreply/internal/protocol"

type handshakeState int

const (
	stateUnidentified handshakeState = iota
	stateIdentified
)

// accepts reports whether a message of kind may be handled in state s.
// Identified is terminal, so a second identify is refused.
func (s handshakeState) accepts(kind protocol.Kind) bool {
	if s == stateIdentified {
		return kind != protocol.KindIdentify
	}
	switch kind {
	case protocol.KindIdentify, protocol.KindInfoResponse, protocol.KindPing, protocol.KindComment:
		return true
	default:
		return false
	}
}

func (s handshakeState) refusal(kind protocol.Kind) string {
	if s == stateIdentified {
		return "already identified"
	}
	return "identify first: " + string(kind) + " requires an identified session"
}
