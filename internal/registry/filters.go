package registry

import "github.com/pscheid92/commentreply/internal/domain"

// ReplyCapable matches identified sessions that can post replies.
func ReplyCapable(s domain.Session) bool {
	return s.Identified() && s.ReplyCapable()
}

// ForBroadcast builds a List filter for the dispatch tool: sessions of broadcastID
// (any broadcast when empty), optionally only reply-capable ones.
func ForBroadcast(broadcastID string, replierOnly bool) func(domain.Session) bool {
	return func(s domain.Session) bool {
		if broadcastID != "" && s.BroadcastID != broadcastID {
			return false
		}
		if replierOnly && !ReplyCapable(s) {
			return false
		}
		return true
	}
}
