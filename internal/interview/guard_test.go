package interview

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestTurnGuard_SingleFlight(t *testing.T) {
	guard := newTurnGuard()
	sessionID := uuid.New()

	release, err := guard.acquire(sessionID)
	if err != nil {
		t.Fatalf("first acquire = %v", err)
	}

	if _, err := guard.acquire(sessionID); !errors.Is(err, ErrTurnInFlight) {
		t.Errorf("second acquire = %v, want ErrTurnInFlight", err)
	}

	// Other sessions are unaffected.
	otherRelease, err := guard.acquire(uuid.New())
	if err != nil {
		t.Errorf("acquire for other session = %v", err)
	}
	otherRelease()

	release()
	release2, err := guard.acquire(sessionID)
	if err != nil {
		t.Errorf("acquire after release = %v", err)
	}
	release2()
}

func TestTurnGuard_ReleaseIdempotent(t *testing.T) {
	guard := newTurnGuard()
	sessionID := uuid.New()

	release, err := guard.acquire(sessionID)
	if err != nil {
		t.Fatalf("acquire = %v", err)
	}
	release()
	release() // double release must not panic or corrupt state

	release2, err := guard.acquire(sessionID)
	if err != nil {
		t.Errorf("acquire after double release = %v", err)
	}
	release2()
}

func TestTurnGuard_ConcurrentAcquire(t *testing.T) {
	guard := newTurnGuard()
	sessionID := uuid.New()

	const attempts = 50
	var wg sync.WaitGroup
	winners := make(chan func(), attempts)

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, err := guard.acquire(sessionID); err == nil {
				winners <- release
			}
		}()
	}
	wg.Wait()
	close(winners)

	var count int
	for release := range winners {
		count++
		release()
	}
	if count != 1 {
		t.Errorf("%d goroutines acquired the turn, want exactly 1", count)
	}
}
