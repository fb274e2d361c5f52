package kstate

import (
	"formalos/kernel/feature"
	"formalos/kernel/klog"
)

// ipcPathEvent enumerates the observable IPC delivery paths for tracing.
type ipcPathEvent uint8

const (
	ipcPathSendFast ipcPathEvent = iota
	ipcPathSendSlow
	ipcPathRecvFast
	ipcPathRecvSlow
	ipcPathReplyDelivered
)

// ipcSyscallKind names the traced syscall boundary crossings.
type ipcSyscallKind uint8

const (
	ipcSyscallRecv ipcSyscallKind = iota
	ipcSyscallSend
	ipcSyscallReply
)

// traceIPCSyscall emits the syscall-boundary trace record in its stable
// format. The record never changes kernel behavior; it only writes log
// lines, so it compiles away entirely when the trace feature is off.
func (k *KernelState) traceIPCSyscall(kind ipcSyscallKind, tid TaskID, ep EndpointID, msg Message, hasMsg bool) {
	if !feature.IPCTracePaths {
		return
	}

	switch kind {
	case ipcSyscallRecv:
		klog.Info("ipc_trace kind=ipc_recv")
	case ipcSyscallSend:
		klog.Info("ipc_trace kind=ipc_send")
	case ipcSyscallReply:
		klog.Info("ipc_trace kind=ipc_reply")
	}

	klog.InfoU64("task_id_hash", stableHash64(uint64(tid)))
	klog.InfoU64("ep_id_hash", stableHash64(uint64(ep)))

	if hasMsg {
		klog.InfoU64("msg", uint64(msg))
	}
}

// traceIPCPath emits the delivery-path annotation of an IPC operation.
func (k *KernelState) traceIPCPath(ev ipcPathEvent) {
	if !feature.IPCTracePaths {
		return
	}

	switch ev {
	case ipcPathSendFast:
		klog.Info("ipc_trace_paths send=fast")
	case ipcPathSendSlow:
		klog.Info("ipc_trace_paths send=slow")
	case ipcPathRecvFast:
		klog.Info("ipc_trace_paths recv=fast")
	case ipcPathRecvSlow:
		klog.Info("ipc_trace_paths recv=slow")
	case ipcPathReplyDelivered:
		klog.Info("ipc_trace_paths reply=delivered")
	}
}

// stableHash64 hashes the little-endian byte representation of v with
// FNV-1a. The result is a debugging identity for trace correlation, not a
// persistent identifier.
func stableHash64(v uint64) uint64 {
	const (
		fnvOffset = uint64(0xcbf29ce484222325)
		fnvPrime  = uint64(0x100000001b3)
	)

	h := fnvOffset
	for i := 0; i < 8; i++ {
		h ^= (v >> (8 * i)) & 0xff
		h *= fnvPrime
	}

	return h
}
