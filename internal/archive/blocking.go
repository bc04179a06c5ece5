package archive

import (
	"time"
)

// WaitForAppend blocks until either a new append occurs or timeout elapses.
// It returns true if woken by an append, false on timeout. A timeout of zero
// or less waits indefinitely.
func (a *Archive) WaitForAppend(timeout time.Duration) bool {
	a.mu.Lock()
	ch := a.notifyCh
	a.mu.Unlock()

	if timeout <= 0 {
		<-ch
		return true
	}
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}
