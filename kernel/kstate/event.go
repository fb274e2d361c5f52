package kstate

import (
	"formalos/kernel/klog"
	"formalos/kernel/mem/vmm"
)

// EventLogCap is the fixed capacity of the abstract event trace. Once the
// trace fills up further events are counted and dropped; the dump emits a
// single LogTruncated marker in their place.
const EventLogCap = 256

// IPCPath records whether an IPC operation completed against an
// already-waiting counterpart (fast) or had to park the caller (slow).
type IPCPath uint8

const (
	// PathFast marks delivery to an already-waiting counterpart.
	PathFast IPCPath = iota

	// PathSlow marks an operation that parked its caller.
	PathSlow
)

// String implements fmt.Stringer for IPCPath.
func (p IPCPath) String() string {
	if p == PathFast {
		return "fast"
	}

	return "slow"
}

// EventKind discriminates the variants of Event.
type EventKind uint8

const (
	EventTickStarted EventKind = iota + 1
	EventTimerUpdated
	EventFrameAllocated
	EventTaskSwitched
	EventTaskStateChanged
	EventReadyQueued
	EventReadyDequeued
	EventWaitQueued
	EventWaitDequeued
	EventRuntimeUpdated
	EventQuantumExpired
	EventMemActionApplied
	EventSyscallIssued
	EventSyscallHandled
	EventIPCSend
	EventIPCRecv
	EventIPCReply
)

// Event is one record of the abstract trace. Only the fields relevant for a
// given Kind are populated; everything is kept by value so the log never
// aliases live kernel state.
type Event struct {
	Kind EventKind

	// Tick carries the counter value for TickStarted / TimerUpdated /
	// RuntimeUpdated / QuantumExpired.
	Tick uint64

	// Task identifies the acting task for task-scoped events. IPC events
	// use it for the sender (send/reply) or receiver (recv).
	Task TaskID

	// State is the target state for TaskStateChanged.
	State TaskState

	// EP identifies the endpoint for IPC events.
	EP EndpointID

	// Path annotates IPC send/recv delivery.
	Path IPCPath

	// Delivered annotates IPC reply delivery.
	Delivered bool

	// Msg carries the payload for IPC send events.
	Msg Message

	// Action carries the applied action for MemActionApplied.
	Action vmm.MemAction
}

// eventLog is the append-only bounded trace (C1).
type eventLog struct {
	events  [EventLogCap]Event
	length  int
	dropped uint64
}

// append records ev, or counts it as dropped once the trace is full.
func (l *eventLog) append(ev Event) {
	if l.length == EventLogCap {
		l.dropped++
		return
	}

	l.events[l.length] = ev
	l.length++
}

// pushEvent appends ev to the kernel trace.
func (k *KernelState) pushEvent(ev Event) {
	k.events.append(ev)
}

// logEvent prints one trace record in the stable dump format: an "EVENT:"
// line naming the variant followed by one key-value line per field.
func logEvent(ev Event) {
	switch ev.Kind {
	case EventTickStarted:
		klog.Info("EVENT: TickStarted")
		klog.InfoU64(" tick", ev.Tick)
	case EventTimerUpdated:
		klog.Info("EVENT: TimerUpdated")
		klog.InfoU64(" time", ev.Tick)
	case EventFrameAllocated:
		klog.Info("EVENT: FrameAllocated")
	case EventTaskSwitched:
		klog.Info("EVENT: TaskSwitched")
		klog.InfoU64(" task", uint64(ev.Task))
	case EventTaskStateChanged:
		klog.Info("EVENT: TaskStateChanged")
		klog.InfoU64(" task", uint64(ev.Task))
		klog.Infof(" to %s", ev.State)
	case EventReadyQueued:
		klog.Info("EVENT: ReadyQueued")
		klog.InfoU64(" task", uint64(ev.Task))
	case EventReadyDequeued:
		klog.Info("EVENT: ReadyDequeued")
		klog.InfoU64(" task", uint64(ev.Task))
	case EventWaitQueued:
		klog.Info("EVENT: WaitQueued")
		klog.InfoU64(" task", uint64(ev.Task))
	case EventWaitDequeued:
		klog.Info("EVENT: WaitDequeued")
		klog.InfoU64(" task", uint64(ev.Task))
	case EventRuntimeUpdated:
		klog.Info("EVENT: RuntimeUpdated")
		klog.InfoU64(" task", uint64(ev.Task))
		klog.InfoU64(" runtime", ev.Tick)
	case EventQuantumExpired:
		klog.Info("EVENT: QuantumExpired")
		klog.InfoU64(" task", uint64(ev.Task))
		klog.InfoU64(" used_ticks", ev.Tick)
	case EventMemActionApplied:
		klog.Info("EVENT: MemActionApplied")
		klog.InfoU64(" task", uint64(ev.Task))
		klog.Infof(" mem_action = %s", ev.Action.Kind)
		klog.InfoU64(" virt_page_index", uint64(ev.Action.Page))
		if ev.Action.Kind == vmm.MemActionMap {
			klog.InfoU64(" phys_frame_index", uint64(ev.Action.Frame))
			klog.InfoU64(" flags_bits", uint64(ev.Action.Flags))
		}
	case EventSyscallIssued:
		klog.Info("EVENT: SyscallIssued")
		klog.InfoU64(" task", uint64(ev.Task))
	case EventSyscallHandled:
		klog.Info("EVENT: SyscallHandled")
		klog.InfoU64(" task", uint64(ev.Task))
	case EventIPCSend:
		klog.Info("EVENT: IpcSend")
		klog.InfoU64(" sender", uint64(ev.Task))
		klog.InfoU64(" ep", uint64(ev.EP))
		klog.Infof(" path = %s", ev.Path)
		klog.InfoU64(" msg", uint64(ev.Msg))
	case EventIPCRecv:
		klog.Info("EVENT: IpcRecv")
		klog.InfoU64(" receiver", uint64(ev.Task))
		klog.InfoU64(" ep", uint64(ev.EP))
		klog.Infof(" path = %s", ev.Path)
	case EventIPCReply:
		klog.Info("EVENT: IpcReply")
		klog.InfoU64(" sender", uint64(ev.Task))
		klog.InfoU64(" ep", uint64(ev.EP))
		if ev.Delivered {
			klog.Info(" delivered = true")
		} else {
			klog.Info(" delivered = false")
		}
	}
}
