package kstate

import (
	"testing"

	"formalos/kernel"
	"formalos/kernel/machine"
	"formalos/kernel/mem"
	"formalos/kernel/mem/pmm"
	"formalos/kernel/mem/vmm"
)

// testFrames is a deterministic bump frame source.
type testFrames struct {
	next pmm.Frame
	fail bool
}

func (f *testFrames) AllocFrame() (pmm.Frame, *kernel.Error) {
	if f.fail {
		return pmm.InvalidFrame, errFramesExhausted
	}

	frame := f.next
	f.next++
	return frame, nil
}

// capturePanics replaces the fail-stop sink with a recorder. Tests must
// always install it before driving paths that may fail-stop, because the
// default sink halts the process.
func capturePanics() (*[]interface{}, func()) {
	origPanic := panicFn

	var recorded []interface{}
	panicFn = func(e interface{}) { recorded = append(recorded, e) }

	return &recorded, func() { panicFn = origPanic }
}

// newTestKernel boots a kernel state machine on a fresh simulated machine
// with a bump frame source starting in high memory.
func newTestKernel(t *testing.T) (*KernelState, *machine.Machine, func()) {
	t.Helper()

	m, err := machine.New(8 * mem.Mb)
	if err != nil {
		t.Fatalf("unexpected error creating machine: %v", err)
	}
	root := m.InitKernelPageTables()

	frames := &testFrames{next: pmm.FrameFromAddress(0x200000)}
	vmm.SetFrameAllocator(frames.AllocFrame)
	vmm.SetTLBFlushHandler(m.FlushTLBEntry)

	k := New(Config{
		Hardware:            m,
		FrameSource:         frames,
		KernelPageTableRoot: root,
	})

	restore := func() {
		vmm.SetFrameAllocator(nil)
		vmm.SetTLBFlushHandler(func(uint64) {})
	}

	return k, m, restore
}

// makeCurrent force-switches the scheduler to idx for test setup, keeping the
// queues consistent.
func (k *KernelState) makeCurrent(idx int) {
	if k.validTaskIndex(k.currentTask) && k.tasks[k.currentTask].State == TaskRunning {
		cur := k.currentTask
		k.tasks[cur].State = TaskReady
		k.enqueueReady(cur)
	}

	k.readyQueue.remove(idx)
	k.tasks[idx].State = TaskRunning
	k.tasks[idx].Reason = BlockedReason{}
	k.tasks[idx].QuantumRemaining = QuantumDefault
	k.currentTask = idx
}

// recordedEvents returns the trace entries appended after position start.
func (k *KernelState) recordedEvents(start int) []Event {
	return append([]Event(nil), k.events.events[start:k.events.length]...)
}

// eventMatches compares the fields of an event that are meaningful for its
// kind.
func eventMatches(got, want Event) bool {
	if got.Kind != want.Kind {
		return false
	}

	switch want.Kind {
	case EventTaskStateChanged:
		return got.Task == want.Task && got.State == want.State
	case EventReadyQueued, EventReadyDequeued, EventWaitQueued, EventWaitDequeued, EventTaskSwitched:
		return got.Task == want.Task
	case EventIPCSend:
		return got.Task == want.Task && got.EP == want.EP && got.Path == want.Path && got.Msg == want.Msg
	case EventIPCRecv:
		return got.Task == want.Task && got.EP == want.EP && got.Path == want.Path
	case EventIPCReply:
		return got.Task == want.Task && got.EP == want.EP && got.Delivered == want.Delivered
	}

	return true
}

// assertEventSubsequence checks that want appears inside got, in order but
// not necessarily adjacent.
func assertEventSubsequence(t *testing.T, got, want []Event) {
	t.Helper()

	pos := 0
	for _, w := range want {
		found := false
		for ; pos < len(got); pos++ {
			if eventMatches(got[pos], w) {
				found = true
				pos++
				break
			}
		}
		if !found {
			t.Fatalf("expected event %+v not found in order within %d recorded events", w, len(got))
		}
	}
}
