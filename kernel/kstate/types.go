// Package kstate implements the kernel state machine: a fixed task table
// with a priority round-robin scheduler, synchronous endpoint IPC, per-task
// address spaces backed by real page tables, and an append-only abstract
// event trace. All state lives in one aggregate (KernelState) that is owned
// and mutated exclusively by the tick loop; the pure transition function
// NextActivityAndAction only ever sees read-only views of it.
//
// Tasks and endpoints reference each other through small array indices that
// are validated against the tables on every use, never through pointers, so
// the whole structure stays translatable to a formal model.
package kstate

// TaskID is the stable public identifier of a task. It is distinct from the
// task's index in the task table: indices are an internal queueing currency
// and never appear in events.
type TaskID uint64

// EndpointID identifies an IPC endpoint slot.
type EndpointID int

// Message is the payload carried by the IPC fastpath registers.
type Message uint64

// TaskState enumerates the lifecycle states of a task. At most one task is
// Running at any instant.
type TaskState uint8

const (
	// TaskReady marks a runnable task waiting in the ready queue.
	TaskReady TaskState = iota

	// TaskRunning marks the task currently executing.
	TaskRunning

	// TaskBlocked marks a task waiting on its blocked reason.
	TaskBlocked

	// TaskDead marks a task that has been terminated. Dead tasks are never
	// revived and never reaped in this prototype.
	TaskDead
)

// String implements fmt.Stringer for TaskState.
func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "READY"
	case TaskRunning:
		return "RUNNING"
	case TaskBlocked:
		return "BLOCKED"
	case TaskDead:
		return "DEAD"
	}

	return "UNKNOWN"
}

// BlockedReasonKind discriminates the variants of BlockedReason.
type BlockedReasonKind uint8

const (
	// blockedNone is the zero value of a reason; only valid on tasks that
	// are not Blocked.
	blockedNone BlockedReasonKind = iota

	// BlockedSleep marks a task sleeping until a wake tick.
	BlockedSleep

	// BlockedIPCRecv marks a task waiting as the receiver on an endpoint.
	BlockedIPCRecv

	// BlockedIPCSend marks a task queued as a sender on an endpoint.
	BlockedIPCSend

	// BlockedIPCReply marks a task waiting for a reply from its partner.
	BlockedIPCReply
)

// BlockedReason captures why a Blocked task cannot run. WakeTick is only
// meaningful for Sleep, EP for the IPC variants and Partner for IPCReply.
type BlockedReason struct {
	Kind     BlockedReasonKind
	WakeTick uint64
	EP       EndpointID
	Partner  TaskID
}

// SleepReason returns a BlockedReason for a task sleeping until wakeTick.
func SleepReason(wakeTick uint64) BlockedReason {
	return BlockedReason{Kind: BlockedSleep, WakeTick: wakeTick}
}

// RecvReason returns a BlockedReason for a receiver waiting on ep.
func RecvReason(ep EndpointID) BlockedReason {
	return BlockedReason{Kind: BlockedIPCRecv, EP: ep}
}

// SendReason returns a BlockedReason for a sender queued on ep.
func SendReason(ep EndpointID) BlockedReason {
	return BlockedReason{Kind: BlockedIPCSend, EP: ep}
}

// ReplyReason returns a BlockedReason for a sender awaiting a reply from
// partner on ep.
func ReplyReason(partner TaskID, ep EndpointID) BlockedReason {
	return BlockedReason{Kind: BlockedIPCReply, EP: ep, Partner: partner}
}
