package kstate

import "formalos/kernel/mem/vmm"

const (
	// maxTasks is the fixed capacity of the task table. Tasks are created
	// at kernel init and are only ever marked Dead afterwards.
	maxTasks = 3

	// noTask is the current-task sentinel used while no task is Running.
	noTask = -1

	// QuantumDefault is the scheduling budget, in ticks, granted to a task
	// when it is switched in.
	QuantumDefault = 5
)

// Task is one slot of the fixed task table.
type Task struct {
	ID       TaskID
	State    TaskState
	Priority uint8

	// QuantumRemaining is the unspent part of the task's time slice.
	QuantumRemaining uint64

	// RuntimeTicks counts the ticks this task spent Running.
	RuntimeTicks uint64

	// AddressSpaceID indexes the address-space table; the prototype pins
	// it to the task's own index.
	AddressSpaceID int

	// Reason is only meaningful while State == TaskBlocked.
	Reason BlockedReason

	// PendingSendMsg holds the message of a sender parked on the IPC
	// slowpath. Present iff the task is Blocked(IPCSend).
	PendingSendMsg    Message
	HasPendingSendMsg bool

	// LastMsg is the last message delivered to this task by the IPC
	// send/recv paths.
	LastMsg    Message
	HasLastMsg bool

	// LastReply is the last reply delivered to this task.
	LastReply    Message
	HasLastReply bool

	// pendingSyscall is the syscall the task wants the kernel to run on
	// its behalf at the next syscall-boundary drain.
	pendingSyscall    Syscall
	hasPendingSyscall bool

	// pendingMemAction is the synthetic memory action the task wants
	// applied to its address space. The pure transition function inspects
	// it; the effectful step consumes it.
	pendingMemAction    vmm.MemAction
	hasPendingMemAction bool
}

// taskByID returns the index of the task carrying id, or noTask.
func (k *KernelState) taskByID(id TaskID) int {
	for i := 0; i < k.numTasks; i++ {
		if k.tasks[i].ID == id {
			return i
		}
	}

	return noTask
}

// validTaskIndex reports whether idx addresses a live slot of the task table.
func (k *KernelState) validTaskIndex(idx int) bool {
	return idx >= 0 && idx < k.numTasks
}
