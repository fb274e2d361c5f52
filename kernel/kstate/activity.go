package kstate

import "formalos/kernel/mem/vmm"

// TimerPeriod is the tick cadence of the timer activity: every TimerPeriod-th
// tick updates the kernel timer before anything else may happen.
const TimerPeriod = 4

// KernelActivity names what the kernel is doing during the current tick. One
// activity is active at a time.
type KernelActivity uint8

const (
	// ActivityIdle marks a tick with nothing but scheduling work.
	ActivityIdle KernelActivity = iota

	// ActivityUpdatingTimer marks a timer update tick.
	ActivityUpdatingTimer

	// ActivityAllocatingFrame marks a tick satisfying a demo frame
	// request.
	ActivityAllocatingFrame

	// ActivityMappingDemoPage marks a tick applying a synthetic memory
	// action for the current task.
	ActivityMappingDemoPage
)

// String implements fmt.Stringer for KernelActivity.
func (a KernelActivity) String() string {
	switch a {
	case ActivityIdle:
		return "Idle"
	case ActivityUpdatingTimer:
		return "UpdatingTimer"
	case ActivityAllocatingFrame:
		return "AllocatingFrame"
	case ActivityMappingDemoPage:
		return "MappingDemoPage"
	}

	return "Unknown"
}

// KernelActionKind discriminates the variants of KernelAction.
type KernelActionKind uint8

const (
	// ActionNone performs no effect.
	ActionNone KernelActionKind = iota

	// ActionIncrementTimer advances the kernel timer and wakes due
	// sleepers.
	ActionIncrementTimer

	// ActionAllocFrame allocates one demo frame from the frame source.
	ActionAllocFrame

	// ActionApplyMem applies a MemAction to a task's address space and
	// its backing page tables.
	ActionApplyMem

	// ActionSchedule runs one scheduler step.
	ActionSchedule
)

// KernelAction is the effect the tick step must perform. Task and Mem are
// only meaningful for ActionAllocFrame / ActionApplyMem.
type KernelAction struct {
	Kind KernelActionKind
	Task int
	Mem  vmm.MemAction
}

// NextActivityAndAction is the pure transition function of the kernel state
// machine. It derives the next activity and the action the effectful step
// must apply from a read-only view of the current state: same state, same
// answer. The priority order of the rules is fixed.
func (k *KernelState) NextActivityAndAction() (KernelActivity, KernelAction) {
	// Rule 1: the timer fires on a fixed tick cadence ahead of all other
	// work.
	if k.tickCount%TimerPeriod == 0 {
		return ActivityUpdatingTimer, KernelAction{Kind: ActionIncrementTimer}
	}

	// Rule 2: outstanding demo frame requests are served next.
	for idx := 0; idx < k.numTasks; idx++ {
		if k.demoFrameWanted[idx] && !k.demoFrame[idx].Valid() {
			return ActivityAllocatingFrame, KernelAction{Kind: ActionAllocFrame, Task: idx}
		}
	}

	// Rule 3: a pending synthetic memory action of the current task.
	if k.validTaskIndex(k.currentTask) && k.tasks[k.currentTask].hasPendingMemAction {
		return ActivityMappingDemoPage, KernelAction{
			Kind: ActionApplyMem,
			Task: k.currentTask,
			Mem:  k.tasks[k.currentTask].pendingMemAction,
		}
	}

	// Rule 4: nothing special to do; run the scheduler.
	return ActivityIdle, KernelAction{Kind: ActionSchedule}
}
