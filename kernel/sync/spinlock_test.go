package sync

import "testing"

func TestSpinlock(t *testing.T) {
	defer func(origYield func()) {
		yieldFn = origYield
	}(yieldFn)

	var l Spinlock

	if !l.TryToAcquire() {
		t.Fatal("expected TryToAcquire on a free lock to succeed")
	}

	if l.TryToAcquire() {
		t.Fatal("expected TryToAcquire on a held lock to fail")
	}

	var yields int
	yieldFn = func() {
		yields++
		l.Release()
	}

	l.Acquire()
	if yields != 1 {
		t.Fatalf("expected Acquire to spin once before the lock was released; spun %d times", yields)
	}

	l.Release()
	l.Acquire()
	if yields != 1 {
		t.Fatal("expected Acquire on a free lock not to spin")
	}
}
