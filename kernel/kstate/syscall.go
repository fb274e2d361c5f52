package kstate

// SyscallKind discriminates the variants of Syscall. The prototype's syscall
// surface is IPC only; tasks place a pending syscall in their table slot and
// the kernel drains at most one per tick at the tick's syscall boundary.
type SyscallKind uint8

const (
	syscallNone SyscallKind = iota

	// SyscallIPCRecv receives on an endpoint.
	SyscallIPCRecv

	// SyscallIPCSend sends a message on an endpoint.
	SyscallIPCSend

	// SyscallIPCReply replies to the parked partner on an endpoint.
	SyscallIPCReply
)

// Syscall is a pending request a task placed for the kernel. Msg is only
// meaningful for send and reply.
type Syscall struct {
	Kind SyscallKind
	EP   EndpointID
	Msg  Message
}

// issueSyscall queues sc for the task at idx. A task can hold at most one
// pending syscall; a second issue before the drain is dropped.
func (k *KernelState) issueSyscall(idx int, sc Syscall) bool {
	if !k.validTaskIndex(idx) || k.tasks[idx].hasPendingSyscall {
		return false
	}

	k.tasks[idx].pendingSyscall = sc
	k.tasks[idx].hasPendingSyscall = true
	return true
}

// drainPendingSyscall picks up the current task's pending syscall, if any,
// and dispatches it into the IPC engine.
func (k *KernelState) drainPendingSyscall() {
	idx := k.currentTask
	if !k.validTaskIndex(idx) || !k.tasks[idx].hasPendingSyscall {
		return
	}

	sc := k.tasks[idx].pendingSyscall
	k.tasks[idx].hasPendingSyscall = false
	k.tasks[idx].pendingSyscall = Syscall{}

	tid := k.tasks[idx].ID
	k.pushEvent(Event{Kind: EventSyscallIssued, Task: tid})
	k.handleSyscall(sc)
}

// handleSyscall is the single entry point from the syscall boundary into the
// kernel proper.
func (k *KernelState) handleSyscall(sc Syscall) {
	tid := k.tasks[k.currentTask].ID
	k.pushEvent(Event{Kind: EventSyscallHandled, Task: tid})

	switch sc.Kind {
	case SyscallIPCRecv:
		k.traceIPCSyscall(ipcSyscallRecv, tid, sc.EP, 0, false)
		k.ipcRecv(sc.EP)
	case SyscallIPCSend:
		k.traceIPCSyscall(ipcSyscallSend, tid, sc.EP, sc.Msg, true)
		k.ipcSend(sc.EP, sc.Msg)
	case SyscallIPCReply:
		k.traceIPCSyscall(ipcSyscallReply, tid, sc.EP, sc.Msg, true)
		k.ipcReply(sc.EP, sc.Msg)
	}
}
