package usecase

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSessionLockerSerializesSameSession(t *testing.T) {
	sl := NewSessionLocker()
	var inCritical, maxInCritical int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _i := 0; _i < 8; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := sl.Lock(context.Background(), "same")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxInCritical != 1 {
		t.Fatalf("critical section concurrency %d, want 1", maxInCritical)
	}
	if sl.ActiveCount() != 0 {
		t.Fatalf("locks leaked: %d", sl.ActiveCount())
	}
}

func TestSessionLockerIndependentSessions(t *testing.T) {
	sl := NewSessionLocker()

	unlockA, err := sl.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer unlockA()

	// a held lock on "a" must not block "b"
	done := make(chan struct{})
	go func() {
		unlockB, err := sl.Lock(context.Background(), "b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on independent session blocked")
	}
}

func TestSessionLockerCancelledContext(t *testing.T) {
	sl := NewSessionLocker()

	unlock, err := sl.Lock(context.Background(), "s")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := sl.Lock(ctx, "s"); err == nil {
		t.Fatal("expected error on cancelled lock acquisition")
	}

	unlock()

	// the session must not be wedged after the cancelled attempt
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	unlock2, err := sl.Lock(ctx2, "s")
	if err != nil {
		t.Fatalf("session wedged after cancelled acquisition: %v", err)
	}
	unlock2()
}
