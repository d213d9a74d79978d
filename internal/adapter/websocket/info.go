package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const defaultInfoWindow = 10 * time.Second

// infoTracker remembers outstanding info requests for a bounded window.
type infoTracker struct {
	pending *cache.Cache
}

func newInfoTracker(window time.Duration) *infoTracker {
	return &infoTracker{pending: cache.New(window, 2*window)}
}

// open records a request for handle and returns its id.
func (t *infoTracker) open(handle string) string {
	id := uuid.NewString()
	t.pending.Set(id, handle, cache.DefaultExpiration)
	return id
}

// settle consumes the request id and returns the handle it was issued to.
// Unknown and expired ids report false.
func (t *infoTracker) settle(requestID string) (string, bool) {
	v, found := t.pending.Get(requestID)
	if !found {
		return "", false
	}
	t.pending.Delete(requestID)
	return v.(string), true
}
