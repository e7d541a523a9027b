package collector

import (
	"sync"
	"time"

	"github.com/leka/craftwatch/internal/domain"
)

// StatusCache holds the most recently polled server status. One writer
// (the poller), many concurrent readers; the whole value is replaced
// under the lock so a reader never sees a mix of two cycles.
type StatusCache struct {
	mu     sync.RWMutex
	status domain.ServerStatus
}

// NewStatusCache returns a cache in the Unknown state.
func NewStatusCache() *StatusCache {
	return &StatusCache{
		status: domain.ServerStatus{
			State:       domain.StateUnknown,
			PlayerNames: []string{},
			ObservedAt:  time.Now().UTC(),
		},
	}
}

// Read returns the latest fully written status.
func (c *StatusCache) Read() domain.ServerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Write replaces the cached status in one step.
func (c *StatusCache) Write(status domain.ServerStatus) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}
