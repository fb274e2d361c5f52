package kstate

import (
	"formalos/kernel"
	"formalos/kernel/klog"
)

var errRecvWaiterOccupied = &kernel.Error{Module: "kstate", Message: "ipc_recv: endpoint recv_waiter already occupied"}

// ipcSend delivers msg on ep for the current task.
//
// Fastpath: a live receive waiter gets the message immediately, turns Ready,
// and the sender parks in the reply queue waiting for the answer. Slowpath:
// no waiter (or only a dead one, which is lazily cleared) parks the sender in
// the send queue with the message saved in its pending-send slot.
func (k *KernelState) ipcSend(ep EndpointID, msg Message) {
	if !k.validEndpoint(ep) {
		klog.Error("ipc_send: invalid endpoint handle; rejected")
		return
	}

	sendIdx := k.currentTask
	if !k.validTaskIndex(sendIdx) {
		klog.Error("ipc_send: no current task")
		return
	}
	sendID := k.tasks[sendIdx].ID

	e := &k.endpoints[ep]
	if e.closed {
		klog.Error("ipc_send: endpoint is closed; rejected")
		return
	}

	if e.recvWaiter != noWaiter {
		recvIdx := e.recvWaiter

		switch {
		case !k.validTaskIndex(recvIdx):
			klog.Error("ipc_send: recv_waiter index out of range; clearing")
			e.recvWaiter = noWaiter
		case k.tasks[recvIdx].State == TaskDead:
			// Lazy clearing of a dead waiter; the send falls back to
			// the slowpath.
			klog.Error("ipc_send: recv_waiter is dead; clearing lazily")
			e.recvWaiter = noWaiter
		case k.tasks[recvIdx].State != TaskBlocked || k.tasks[recvIdx].Reason.Kind != BlockedIPCRecv:
			klog.Error("ipc_send: recv_waiter state mismatch; abort deliver")
			return
		default:
			recvID := k.tasks[recvIdx].ID
			e.recvWaiter = noWaiter

			k.pushEvent(Event{Kind: EventIPCSend, Task: sendID, EP: ep, Path: PathFast, Msg: msg})
			k.traceIPCPath(ipcPathSendFast)

			k.wakeTaskToReady(recvIdx)
			k.tasks[recvIdx].LastMsg = msg
			k.tasks[recvIdx].HasLastMsg = true

			k.blockCurrent(ReplyReason(recvID, ep))
			if !e.replyQueue.push(sendIdx) {
				panicFn(errQueueFull)
				return
			}

			k.noteDemoDelivery(ep, recvIdx)
			k.scheduleStep()
			return
		}
	}

	// Slowpath: park the sender
	k.tasks[sendIdx].PendingSendMsg = msg
	k.tasks[sendIdx].HasPendingSendMsg = true

	k.pushEvent(Event{Kind: EventIPCSend, Task: sendID, EP: ep, Path: PathSlow, Msg: msg})
	k.traceIPCPath(ipcPathSendSlow)

	k.blockCurrent(SendReason(ep))
	if !e.sendQueue.push(sendIdx) {
		panicFn(errQueueFull)
		return
	}

	k.scheduleStep()
}

// pickLiveSender removes and returns a parked sender from the endpoint's
// send queue, lazily purging dead entries along the way. Which live sender is
// picked is deliberately unspecified.
func (k *KernelState) pickLiveSender(e *Endpoint) int {
	for e.sendQueue.length > 0 {
		idx := e.sendQueue.entries[e.sendQueue.length-1]
		e.sendQueue.length--

		if !k.validTaskIndex(idx) {
			klog.Error("ipc_recv: send_queue entry out of range; dropped")
			continue
		}
		if k.tasks[idx].State == TaskDead {
			klog.Error("ipc_recv: parked sender is dead; dropped lazily")
			continue
		}

		return idx
	}

	return noTask
}

// ipcRecv receives on ep for the current task.
//
// Fastpath: a parked sender's message is delivered immediately and the sender
// moves from the send queue to the reply queue. Slowpath: the receiver parks
// as the endpoint's single receive waiter; a second concurrent receiver is an
// invariant violation and fail-stops.
func (k *KernelState) ipcRecv(ep EndpointID) {
	if !k.validEndpoint(ep) {
		klog.Error("ipc_recv: invalid endpoint handle; rejected")
		return
	}

	recvIdx := k.currentTask
	if !k.validTaskIndex(recvIdx) {
		klog.Error("ipc_recv: no current task")
		return
	}
	recvID := k.tasks[recvIdx].ID

	e := &k.endpoints[ep]
	if e.closed {
		klog.Error("ipc_recv: endpoint is closed; rejected")
		return
	}

	if sendIdx := k.pickLiveSender(e); sendIdx != noTask {
		if !k.tasks[sendIdx].HasPendingSendMsg {
			klog.Error("ipc_recv: sender had no pending_send_msg; abort deliver")
			return
		}

		k.pushEvent(Event{Kind: EventIPCRecv, Task: recvID, EP: ep, Path: PathFast})
		k.traceIPCPath(ipcPathRecvFast)

		msg := k.tasks[sendIdx].PendingSendMsg
		k.tasks[sendIdx].PendingSendMsg = 0
		k.tasks[sendIdx].HasPendingSendMsg = false

		// The sender stays Blocked; only its reason advances from
		// send-parked to awaiting-reply.
		k.tasks[sendIdx].Reason = ReplyReason(recvID, ep)
		if !e.replyQueue.push(sendIdx) {
			panicFn(errQueueFull)
			return
		}

		k.tasks[recvIdx].LastMsg = msg
		k.tasks[recvIdx].HasLastMsg = true

		k.noteDemoDelivery(ep, recvIdx)
		return
	}

	// Slowpath: park as the receive waiter. A populated recv_waiter here
	// means two receivers raced on one endpoint, which the single-waiter
	// protocol rules out.
	if e.recvWaiter != noWaiter {
		klog.Raw("INVARIANT VIOLATION: ipc_recv with recv_waiter already set")
		panicFn(errRecvWaiterOccupied)
		return
	}

	k.pushEvent(Event{Kind: EventIPCRecv, Task: recvID, EP: ep, Path: PathSlow})
	k.traceIPCPath(ipcPathRecvSlow)

	k.blockCurrent(RecvReason(ep))
	e.recvWaiter = recvIdx

	k.scheduleStep()
}

// ipcReply answers the parked sender whose awaited partner is the current
// task. A missing partner is not an error: the reply reports undelivered and
// leaves the state untouched.
func (k *KernelState) ipcReply(ep EndpointID, msg Message) {
	if !k.validEndpoint(ep) {
		klog.Error("ipc_reply: invalid endpoint handle; rejected")
		return
	}

	curIdx := k.currentTask
	if !k.validTaskIndex(curIdx) {
		klog.Error("ipc_reply: no current task")
		return
	}
	curID := k.tasks[curIdx].ID

	e := &k.endpoints[ep]
	if e.closed {
		klog.Error("ipc_reply: endpoint is closed; rejected")
		return
	}

	sendIdx := k.takeReplyWaiterForPartner(e, curID)
	if sendIdx == noTask {
		klog.Error("ipc_reply: no reply waiter for partner; nothing delivered")
		k.pushEvent(Event{Kind: EventIPCReply, Task: curID, EP: ep, Delivered: false})
		return
	}

	k.pushEvent(Event{Kind: EventIPCReply, Task: curID, EP: ep, Delivered: true})
	k.traceIPCPath(ipcPathReplyDelivered)

	k.tasks[sendIdx].LastReply = msg
	k.tasks[sendIdx].HasLastReply = true
	k.wakeTaskToReady(sendIdx)

	k.noteDemoReply(ep, curIdx)
}

// takeReplyWaiterForPartner removes and returns the reply-queue member
// waiting on partner, purging dead entries lazily. Returns noTask when no
// matching waiter exists.
func (k *KernelState) takeReplyWaiterForPartner(e *Endpoint, partner TaskID) int {
	for pos := e.replyQueue.length - 1; pos >= 0; pos-- {
		idx := e.replyQueue.entries[pos]

		if !k.validTaskIndex(idx) {
			klog.Error("ipc_reply: reply_queue entry out of range; dropped")
			e.replyQueue.remove(idx)
			continue
		}
		if k.tasks[idx].State == TaskDead {
			klog.Error("ipc_reply: reply waiter is dead; dropped lazily")
			e.replyQueue.remove(idx)
			continue
		}

		r := k.tasks[idx].Reason
		if r.Kind == BlockedIPCReply && r.Partner == partner && r.EP == e.ID {
			e.replyQueue.remove(idx)
			return idx
		}
	}

	return noTask
}

// closeEndpoint shuts an endpoint down: every parked task is woken without a
// delivery and all queues drain. Further traffic on the endpoint fail-safes.
// Owned endpoints may only be closed by their owner.
func (k *KernelState) closeEndpoint(ep EndpointID) {
	if !k.validEndpoint(ep) {
		return
	}

	e := &k.endpoints[ep]
	if e.hasOwner && (!k.validTaskIndex(k.currentTask) || k.tasks[k.currentTask].ID != e.owner) {
		klog.Error("endpoint close: caller is not the owner; rejected")
		return
	}
	klog.Info("endpoint close: draining waiters")
	klog.InfoU64(" ep_id", uint64(ep))

	if e.recvWaiter != noWaiter {
		k.wakeTaskToReady(e.recvWaiter)
		e.recvWaiter = noWaiter
	}

	for e.sendQueue.length > 0 {
		idx := e.sendQueue.entries[e.sendQueue.length-1]
		e.sendQueue.length--
		if k.validTaskIndex(idx) && k.tasks[idx].State == TaskBlocked {
			k.tasks[idx].PendingSendMsg = 0
			k.tasks[idx].HasPendingSendMsg = false
			k.wakeTaskToReady(idx)
		}
	}

	for e.replyQueue.length > 0 {
		idx := e.replyQueue.entries[e.replyQueue.length-1]
		e.replyQueue.length--
		if k.validTaskIndex(idx) && k.tasks[idx].State == TaskBlocked {
			k.wakeTaskToReady(idx)
		}
	}

	e.closed = true
}
