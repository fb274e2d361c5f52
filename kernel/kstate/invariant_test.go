package kstate

import (
	"bytes"
	"strings"
	"testing"

	"formalos/kernel/klog"
)

// corruptAndCheck applies corrupt to a fresh kernel and runs the invariant
// checker, returning the log output and the recorded fail-stops.
func corruptAndCheck(t *testing.T, corrupt func(k *KernelState)) (string, []interface{}) {
	t.Helper()

	recorded, restorePanics := capturePanics()
	defer restorePanics()

	var buf bytes.Buffer
	klog.SetOutputSink(&buf)
	defer klog.SetOutputSink(nil)

	k, _, restore := newTestKernel(t)
	defer restore()

	corrupt(k)
	k.debugCheckInvariants()

	return buf.String(), *recorded
}

func TestInvariantCheckerPassesBootState(t *testing.T) {
	out, recorded := corruptAndCheck(t, func(k *KernelState) {})

	if len(recorded) != 0 {
		t.Fatalf("expected the boot state to pass; recorded %v", recorded)
	}
	if strings.Contains(out, "INVARIANT VIOLATION") {
		t.Fatalf("expected no violation lines; got %q", out)
	}
}

func TestInvariantCheckerFailStops(t *testing.T) {
	specs := []struct {
		descr   string
		corrupt func(k *KernelState)
	}{
		{
			"two running tasks",
			func(k *KernelState) {
				k.tasks[demoSenderAIndex].State = TaskRunning
				k.readyQueue.remove(demoSenderAIndex)
			},
		},
		{
			"current task not running",
			func(k *KernelState) {
				k.currentTask = demoSenderAIndex
			},
		},
		{
			"ready state without queue membership",
			func(k *KernelState) {
				k.readyQueue.remove(demoSenderAIndex)
			},
		},
		{
			"queue membership without ready state",
			func(k *KernelState) {
				k.tasks[demoSenderAIndex].State = TaskBlocked
				k.tasks[demoSenderAIndex].Reason = SleepReason(9)
			},
		},
		{
			"blocked task without reason",
			func(k *KernelState) {
				k.readyQueue.remove(demoSenderAIndex)
				k.tasks[demoSenderAIndex].State = TaskBlocked
			},
		},
		{
			"pending send message on a runnable task",
			func(k *KernelState) {
				k.tasks[demoSenderAIndex].HasPendingSendMsg = true
			},
		},
		{
			"recv waiter reason mismatch",
			func(k *KernelState) {
				k.readyQueue.remove(demoSenderAIndex)
				k.tasks[demoSenderAIndex].State = TaskBlocked
				k.tasks[demoSenderAIndex].Reason = SleepReason(5)
				k.waitQueue.push(demoSenderAIndex)
				k.endpoints[demoEP].recvWaiter = demoSenderAIndex
			},
		},
		{
			"send queue reason mismatch",
			func(k *KernelState) {
				k.readyQueue.remove(demoSenderAIndex)
				k.tasks[demoSenderAIndex].State = TaskBlocked
				k.tasks[demoSenderAIndex].Reason = SleepReason(5)
				k.waitQueue.push(demoSenderAIndex)
				k.endpoints[demoEP].sendQueue.push(demoSenderAIndex)
			},
		},
	}

	for specIndex, spec := range specs {
		out, recorded := corruptAndCheck(t, spec.corrupt)

		if len(recorded) == 0 {
			t.Errorf("[spec %d] %s: expected a fail-stop", specIndex, spec.descr)
			continue
		}
		if recorded[0] != errInvariantViolation {
			t.Errorf("[spec %d] %s: expected errInvariantViolation; got %v", specIndex, spec.descr, recorded[0])
		}
		if !strings.Contains(out, "INVARIANT VIOLATION") {
			t.Errorf("[spec %d] %s: expected an INVARIANT VIOLATION line; got %q", specIndex, spec.descr, out)
		}
	}
}

func TestDeadTaskInEndpointQueueIsFailSafe(t *testing.T) {
	out, recorded := corruptAndCheck(t, func(k *KernelState) {
		// A parked sender dies while still referenced by the endpoint
		k.makeCurrent(demoSenderAIndex)
		k.ipcSend(demoEP, 0x77)
		k.markDead(demoSenderAIndex)
	})

	if len(recorded) != 0 {
		t.Fatalf("expected a fail-safe, not a fail-stop; recorded %v", recorded)
	}
	if !strings.Contains(out, "DEAD task (lazy cleanup pending)") {
		t.Fatalf("expected a fail-safe log for the dead queue entry; got %q", out)
	}
	if strings.Contains(out, "INVARIANT VIOLATION") {
		t.Fatalf("expected no violation line; got %q", out)
	}
}

func TestEndpointCloseWakesAllWaiters(t *testing.T) {
	recorded, restorePanics := capturePanics()
	defer restorePanics()

	k, _, restore := newTestKernel(t)
	defer restore()
	setEqualPriorities(k)

	// Park one task in the reply queue and another in the send queue
	k.makeCurrent(demoSenderAIndex)
	k.ipcSend(demoEP, 0x91)

	k.makeCurrent(demoReceiverIndex)
	k.ipcRecv(demoEP) // drains the sender into the reply queue

	k.makeCurrent(demoSenderBIndex)
	k.ipcSend(demoEP, 0x92) // parks in the send queue

	k.makeCurrent(demoReceiverIndex)
	k.closeEndpoint(demoEP)

	e := &k.endpoints[demoEP]
	if !e.closed {
		t.Fatal("expected the endpoint to be closed")
	}
	if e.sendQueue.length != 0 || e.replyQueue.length != 0 || e.recvWaiter != noWaiter {
		t.Fatal("expected all endpoint queues drained on close")
	}
	for _, idx := range []int{demoSenderAIndex, demoSenderBIndex} {
		s := k.tasks[idx].State
		if s != TaskReady && s != TaskRunning {
			t.Fatalf("expected parked task %d runnable after close; got %s", idx, s)
		}
	}

	// Closed endpoints reject traffic fail-safe
	k.ipcSend(demoEP, 0x93)
	if k.endpoints[demoEP].sendQueue.length != 0 {
		t.Fatal("expected the closed endpoint to reject the send")
	}

	k.debugCheckInvariants()
	if len(*recorded) != 0 {
		t.Fatalf("expected no fail-stop; recorded %v", *recorded)
	}
}
