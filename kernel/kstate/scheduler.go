package kstate

import (
	"formalos/kernel/klog"
	"formalos/kernel/mem/pmm"
	"formalos/kernel/mem/vmm"
)

// enqueueReady adds a Ready task to the ready queue. Queue capacity equals
// the task table capacity, so a failed push means the bookkeeping is corrupt
// and the kernel fail-stops.
func (k *KernelState) enqueueReady(idx int) {
	if !k.validTaskIndex(idx) || k.tasks[idx].State != TaskReady {
		return
	}
	if k.readyQueue.contains(idx) {
		return
	}

	if !k.readyQueue.push(idx) {
		panicFn(errQueueFull)
		return
	}

	k.pushEvent(Event{Kind: EventReadyQueued, Task: k.tasks[idx].ID})
}

// enqueueWait adds a Blocked task to the wait queue.
func (k *KernelState) enqueueWait(idx int) {
	if !k.validTaskIndex(idx) || k.tasks[idx].State != TaskBlocked {
		return
	}
	if k.tasks[idx].Reason.Kind == blockedNone {
		return
	}
	if k.waitQueue.contains(idx) {
		return
	}

	if !k.waitQueue.push(idx) {
		panicFn(errQueueFull)
		return
	}

	k.pushEvent(Event{Kind: EventWaitQueued, Task: k.tasks[idx].ID})
}

// removeFromWaitQueue drops idx from the wait queue, reporting whether it was
// a member.
func (k *KernelState) removeFromWaitQueue(idx int) bool {
	if !k.waitQueue.remove(idx) {
		return false
	}

	k.pushEvent(Event{Kind: EventWaitDequeued, Task: k.tasks[idx].ID})
	return true
}

// readyTaskBeats reports whether task a should be selected over task b under
// the fixed policy: higher priority wins, ties go to the lower task index.
func (k *KernelState) readyTaskBeats(a, b int) bool {
	if k.tasks[a].Priority != k.tasks[b].Priority {
		return k.tasks[a].Priority > k.tasks[b].Priority
	}

	return a < b
}

// pickReadyTask returns the ready-queue member chosen by the selection
// policy, or noTask. The queue's internal order never influences the choice.
func (k *KernelState) pickReadyTask() int {
	best := noTask
	k.readyQueue.visit(func(idx int) bool {
		if best == noTask || k.readyTaskBeats(idx, best) {
			best = idx
		}
		return true
	})

	return best
}

// higherPriorityReadyExists reports whether some Ready task has a strictly
// higher priority than prio.
func (k *KernelState) higherPriorityReadyExists(prio uint8) bool {
	found := false
	k.readyQueue.visit(func(idx int) bool {
		if k.tasks[idx].Priority > prio {
			found = true
			return false
		}
		return true
	})

	return found
}

// scheduleStep runs one scheduler invocation: either the current task keeps
// the CPU and spends one quantum tick, or the highest-priority Ready task is
// switched in.
func (k *KernelState) scheduleStep() {
	cur := k.currentTask

	if k.validTaskIndex(cur) && k.tasks[cur].State == TaskRunning {
		if k.tasks[cur].QuantumRemaining > 0 && !k.higherPriorityReadyExists(k.tasks[cur].Priority) {
			k.tasks[cur].QuantumRemaining--
			return
		}

		if k.tasks[cur].QuantumRemaining == 0 {
			k.pushEvent(Event{Kind: EventQuantumExpired, Task: k.tasks[cur].ID, Tick: QuantumDefault})
		}

		k.tasks[cur].State = TaskReady
		k.pushEvent(Event{Kind: EventTaskStateChanged, Task: k.tasks[cur].ID, State: TaskReady})
		k.enqueueReady(cur)
	}

	next := k.pickReadyTask()
	if next == noTask {
		klog.Info(" no ready tasks; scheduler idle")
		k.currentTask = noTask
		return
	}

	k.readyQueue.remove(next)
	k.pushEvent(Event{Kind: EventReadyDequeued, Task: k.tasks[next].ID})

	k.tasks[next].State = TaskRunning
	k.tasks[next].Reason = BlockedReason{}
	k.tasks[next].QuantumRemaining = QuantumDefault
	k.currentTask = next

	klog.Info(" switched to task")
	klog.InfoU64(" task_id", uint64(k.tasks[next].ID))

	root := pmm.InvalidFrame
	if r, ok := k.addressSpaces[k.tasks[next].AddressSpaceID].RootPageFrame(); ok {
		root = r
	}
	vmm.SwitchAddressSpace(root)

	k.pushEvent(Event{Kind: EventTaskSwitched, Task: k.tasks[next].ID})
	k.pushEvent(Event{Kind: EventTaskStateChanged, Task: k.tasks[next].ID, State: TaskRunning})
}

// blockCurrent parks the current task with the supplied reason and moves it
// to the wait queue. The caller is responsible for rescheduling.
func (k *KernelState) blockCurrent(reason BlockedReason) {
	idx := k.currentTask
	if !k.validTaskIndex(idx) {
		return
	}

	k.tasks[idx].State = TaskBlocked
	k.tasks[idx].Reason = reason

	k.pushEvent(Event{Kind: EventTaskStateChanged, Task: k.tasks[idx].ID, State: TaskBlocked})
	k.enqueueWait(idx)
}

// blockCurrentAndSchedule parks the current task and hands the CPU over.
func (k *KernelState) blockCurrentAndSchedule(reason BlockedReason) {
	k.blockCurrent(reason)
	k.scheduleStep()
}

// wakeTaskToReady transitions a Blocked task back to Ready and requeues it.
// IPC wakeups must go through here so the wait queue stays consistent.
func (k *KernelState) wakeTaskToReady(idx int) {
	if !k.validTaskIndex(idx) {
		return
	}
	if k.tasks[idx].State != TaskBlocked {
		klog.Error("wake_task_to_ready: target is not BLOCKED")
		return
	}

	k.removeFromWaitQueue(idx)

	k.tasks[idx].State = TaskReady
	k.tasks[idx].Reason = BlockedReason{}

	k.pushEvent(Event{Kind: EventTaskStateChanged, Task: k.tasks[idx].ID, State: TaskReady})
	k.enqueueReady(idx)
}

// wakeDueSleepers wakes every task sleeping with a wake tick at or before
// the current timer value. Only Sleep blocks are eligible; IPC waiters are
// woken exclusively by endpoint delivery.
func (k *KernelState) wakeDueSleepers() {
	var due [maxTasks]int
	dueCount := 0

	k.waitQueue.visit(func(idx int) bool {
		t := &k.tasks[idx]
		if t.Reason.Kind == BlockedSleep && t.Reason.WakeTick <= k.timeTicks {
			due[dueCount] = idx
			dueCount++
		}
		return true
	})

	for i := 0; i < dueCount; i++ {
		klog.Info(" waking sleeping task (timer)")
		k.wakeTaskToReady(due[i])
	}

	// An idle kernel hands the CPU to a woken sleeper right away; a running
	// task keeps the CPU until its next scheduler step
	if dueCount > 0 && k.currentTask == noTask {
		k.scheduleStep()
	}
}

// updateRuntime credits one runtime tick to the task that was Running when
// the tick started.
func (k *KernelState) updateRuntime(ranIdx int) {
	if !k.validTaskIndex(ranIdx) {
		return
	}

	k.tasks[ranIdx].RuntimeTicks++
	k.pushEvent(Event{Kind: EventRuntimeUpdated, Task: k.tasks[ranIdx].ID, Tick: k.tasks[ranIdx].RuntimeTicks})
}
