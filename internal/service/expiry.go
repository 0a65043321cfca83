package service

import (
	"sync"
	"time"
)

// expiryTimers tracks the one-shot consent deadline timer per PENDING
// session. Timers are process-local; a session whose timer is lost to a
// restart is picked up by the periodic sweep job instead.
type expiryTimers struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newExpiryTimers() *expiryTimers {
	return &expiryTimers{timers: make(map[string]*time.Timer)}
}

func (t *expiryTimers) schedule(sessionID string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.timers[sessionID] = time.AfterFunc(d, func() {
		t.remove(sessionID)
		fn()
	})
}

func (t *expiryTimers) cancel(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[sessionID]; ok {
		timer.Stop()
		delete(t.timers, sessionID)
	}
}

func (t *expiryTimers) remove(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.timers, sessionID)
}

func (t *expiryTimers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
