package kstate

import (
	"formalos/kernel"
	"formalos/kernel/klog"
	"formalos/kernel/mem/vmm"
)

var errInvariantViolation = &kernel.Error{Module: "kstate", Message: "invariant checker requested halt"}

// debugCheckInvariants validates the cross-cutting kernel invariants at a
// tick boundary. Structural violations (task states vs queues, endpoint
// bookkeeping, address-space consistency, pending-send slots) are fail-stop:
// each one is reported with an "INVARIANT VIOLATION" line and the kernel
// halts. Dead tasks still referenced by endpoint queues are the one
// fail-safe category: they are logged and left for lazy purging.
func (k *KernelState) debugCheckInvariants() {
	failStop := false
	violation := func(desc string) {
		klog.Raw("INVARIANT VIOLATION: " + desc)
		failStop = true
	}

	// Exactly one Running task, or none while every task is parked
	runningCount := 0
	runningIdx := noTask
	for i := 0; i < k.numTasks; i++ {
		if k.tasks[i].State == TaskRunning {
			runningCount++
			runningIdx = i
		}
	}
	switch {
	case runningCount > 1:
		violation("more than one RUNNING task")
	case runningCount == 1:
		if k.currentTask != runningIdx {
			violation("current_task does not reference the RUNNING task")
		}
	default:
		if k.currentTask != noTask {
			violation("current_task set while no task is RUNNING")
		}
		for i := 0; i < k.numTasks; i++ {
			if s := k.tasks[i].State; s != TaskBlocked && s != TaskDead {
				violation("runnable task exists while no task is RUNNING")
				break
			}
		}
	}

	// Blocked reason bookkeeping
	for i := 0; i < k.numTasks; i++ {
		blocked := k.tasks[i].State == TaskBlocked
		hasReason := k.tasks[i].Reason.Kind != blockedNone
		if blocked && !hasReason {
			violation("BLOCKED task has no blocked_reason")
		}
		if !blocked && hasReason {
			violation("non-BLOCKED task has blocked_reason")
		}
	}

	// Queue membership: no duplicates, disjointness, state correspondence
	var inReady, inWait [maxTasks]bool
	k.readyQueue.visit(func(idx int) bool {
		if !k.validTaskIndex(idx) {
			violation("ready_queue entry out of range")
			return true
		}
		if inReady[idx] {
			violation("duplicate entry in ready_queue")
		}
		inReady[idx] = true
		return true
	})
	k.waitQueue.visit(func(idx int) bool {
		if !k.validTaskIndex(idx) {
			violation("wait_queue entry out of range")
			return true
		}
		if inWait[idx] {
			violation("duplicate entry in wait_queue")
		}
		if inReady[idx] {
			violation("task present in both ready_queue and wait_queue")
		}
		inWait[idx] = true
		return true
	})
	for i := 0; i < k.numTasks; i++ {
		if inReady[i] != (k.tasks[i].State == TaskReady) {
			violation("ready_queue membership does not match READY state")
		}
		if inWait[i] != (k.tasks[i].State == TaskBlocked) {
			violation("wait_queue membership does not match BLOCKED state")
		}
	}

	// Endpoint bookkeeping
	for e := range k.endpoints {
		ep := &k.endpoints[e]

		if w := ep.recvWaiter; w != noWaiter {
			switch {
			case !k.validTaskIndex(w):
				violation("endpoint recv_waiter out of range")
			case k.tasks[w].State == TaskDead:
				// Fail-safe: cleared lazily by the next send
				klog.Error("invariant check: recv_waiter refers to a DEAD task (lazy cleanup pending)")
			case k.tasks[w].State != TaskBlocked,
				k.tasks[w].Reason.Kind != BlockedIPCRecv,
				k.tasks[w].Reason.EP != ep.ID:
				violation("recv_waiter blocked_reason mismatch")
			}
		}

		ep.sendQueue.visit(func(idx int) bool {
			switch {
			case !k.validTaskIndex(idx):
				violation("endpoint send_queue entry out of range")
			case k.tasks[idx].State == TaskDead:
				klog.Error("invariant check: send_queue entry refers to a DEAD task (lazy cleanup pending)")
			case k.tasks[idx].State != TaskBlocked,
				k.tasks[idx].Reason.Kind != BlockedIPCSend,
				k.tasks[idx].Reason.EP != ep.ID:
				violation("send_queue blocked_reason mismatch")
			}
			return true
		})

		ep.replyQueue.visit(func(idx int) bool {
			switch {
			case !k.validTaskIndex(idx):
				violation("endpoint reply_queue entry out of range")
			case k.tasks[idx].State == TaskDead:
				klog.Error("invariant check: reply_queue entry refers to a DEAD task (lazy cleanup pending)")
			case k.tasks[idx].State != TaskBlocked,
				k.tasks[idx].Reason.Kind != BlockedIPCReply,
				k.tasks[idx].Reason.EP != ep.ID:
				violation("reply_queue blocked_reason mismatch")
			}
			return true
		})
	}

	// Address spaces: unique pages, capacity, user low-half separation
	for i := 0; i < k.numTasks; i++ {
		aspace := &k.addressSpaces[k.tasks[i].AddressSpaceID]

		if aspace.MappingCount() > vmm.MaxMappings {
			violation("address space exceeds mapping capacity")
		}

		seen := make(map[vmm.Page]bool, aspace.MappingCount())
		aspace.VisitMappings(func(m *vmm.Mapping) {
			if seen[m.Page] {
				violation("duplicate virtual page in address space")
			}
			seen[m.Page] = true

			if aspace.Kind() == vmm.AddressSpaceUser && m.Page.Address() >= vmm.KernelSpaceStart {
				violation("user mapping in kernel-space range")
			}
		})
	}

	// Pending send slot present iff Blocked(IpcSend)
	for i := 0; i < k.numTasks; i++ {
		sendBlocked := k.tasks[i].State == TaskBlocked && k.tasks[i].Reason.Kind == BlockedIPCSend
		if sendBlocked != k.tasks[i].HasPendingSendMsg {
			violation("pending_send_msg presence does not match Blocked(IpcSend)")
		}
	}

	if failStop {
		panicFn(errInvariantViolation)
	}
}
