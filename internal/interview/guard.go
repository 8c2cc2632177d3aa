package interview

import (
	"sync"

	"github.com/google/uuid"
)

// turnGuard enforces single-flight generation per session. A second
// turn attempt while one is unresolved fails fast instead of queuing,
// so a client reconnect can never start a concurrent generation.
type turnGuard struct {
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

func newTurnGuard() *turnGuard {
	return &turnGuard{active: make(map[uuid.UUID]struct{})}
}

// acquire reserves the session's turn slot. Returns ErrTurnInFlight if
// a turn is already running.
func (g *turnGuard) acquire(sessionID uuid.UUID) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[sessionID]; busy {
		return nil, ErrTurnInFlight
	}
	g.active[sessionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, sessionID)
			g.mu.Unlock()
		})
	}, nil
}
