package kstate

import "formalos/kernel/klog"

// sleepDemoPeriod and sleepDemoDuration drive the scripted Sleep block: on
// every sleepDemoPeriod-th tick the designated task blocks until the timer
// advances by sleepDemoDuration.
const (
	sleepDemoPeriod   = 7
	sleepDemoDuration = 2
	sleepDemoTaskID   = task1ID
)

// Tick performs one atomic step of the kernel state machine: derive the
// intended activity and action purely, apply the action, run the syscall
// boundary of the running task, account runtime, and re-check every kernel
// invariant. Events produced along the way append to the trace in completion
// order.
func (k *KernelState) Tick() {
	if k.shouldHalt {
		return
	}

	k.tickCount++

	klog.Info("KernelState::tick()")
	klog.InfoU64(" tick_count", k.tickCount)
	k.pushEvent(Event{Kind: EventTickStarted, Tick: k.tickCount})

	ranIdx := k.currentTask
	if k.validTaskIndex(ranIdx) {
		klog.InfoU64(" running_task", uint64(k.tasks[ranIdx].ID))
	}

	activity, action := k.NextActivityAndAction()

	switch action.Kind {
	case ActionNone:
		klog.Info(" action = None")
	case ActionIncrementTimer:
		klog.Info(" action = IncrementTimer")
		k.timeTicks++
		klog.InfoU64(" time_ticks", k.timeTicks)
		k.pushEvent(Event{Kind: EventTimerUpdated, Tick: k.timeTicks})
		k.wakeDueSleepers()
	case ActionAllocFrame:
		klog.Info(" action = AllocFrame")
		k.allocDemoFrame(action.Task)
	case ActionApplyMem:
		klog.Info(" action = ApplyMem")
		k.applyMemAction(action.Task, action.Mem)
	case ActionSchedule:
		klog.Info(" action = Schedule")
		k.scheduleStep()
	}

	k.activity = activity

	// Syscall boundary: the running task's user program may issue one
	// request, then the kernel drains it. IPC effects land in the same
	// tick they were issued in.
	if k.validTaskIndex(k.currentTask) {
		k.userStepIssueSyscall(k.currentTask)
		k.demoMemStep(k.currentTask)
		k.drainPendingSyscall()
	}

	k.updateRuntime(ranIdx)

	// Scripted Sleep block for the designated task, only if it survived
	// the tick as the running task.
	stillRunning := ranIdx == k.currentTask &&
		k.validTaskIndex(ranIdx) && k.tasks[ranIdx].State == TaskRunning
	if stillRunning && k.tickCount%sleepDemoPeriod == 0 && k.tasks[ranIdx].ID == sleepDemoTaskID {
		klog.Info(" blocking current task (scripted sleep)")
		k.blockCurrentAndSchedule(SleepReason(k.timeTicks + sleepDemoDuration))
	}

	k.debugCheckInvariants()
}
