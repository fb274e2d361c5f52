package kstate

import (
	"formalos/kernel/feature"
	"formalos/kernel/klog"
)

// Scripted demo constants: the message each sender transmits and the reply
// the receiver returns. The values are chosen to be easy to spot in dumps.
const (
	demoMsgSenderA = Message(0x1111000000000000)
	demoMsgSenderB = Message(0x2222000000000000)
	demoReplyMsg   = Message(0xcccc000000000000)

	// invalidDemoEP is the out-of-range endpoint handle the evil IPC
	// injection uses.
	invalidDemoEP = EndpointID(999)

	// Demo roles by task index: the receiver runs the recv/reply side,
	// the two senders feed it one message each per cycle.
	demoReceiverIndex = 2
	demoSenderAIndex  = 1
	demoSenderBIndex  = 0
)

// noteDemoDelivery advances the demo delivery counter when a message reaches
// the scripted receiver.
func (k *KernelState) noteDemoDelivery(ep EndpointID, recvIdx int) {
	if ep == demoEP && recvIdx == demoReceiverIndex && k.demoMsgsDelivered < 2 {
		k.demoMsgsDelivered++
	}
}

// noteDemoReply advances the demo reply counter when the scripted receiver
// answers a sender.
func (k *KernelState) noteDemoReply(ep EndpointID, curIdx int) {
	if ep == demoEP && curIdx == demoReceiverIndex && k.demoRepliesSent < 2 {
		k.demoRepliesSent++
	}
}

// userStepIssueSyscall is the modeled user program: it decides which syscall
// the Running task wants next. The script is a fixed rendezvous cycle — the
// receiver parks in recv, each sender fires once per cycle when the waiter
// is visible, then two replies close the cycle and it restarts.
func (k *KernelState) userStepIssueSyscall(idx int) {
	if !k.validTaskIndex(idx) || k.tasks[idx].State != TaskRunning {
		return
	}
	if k.tasks[idx].hasPendingSyscall {
		return
	}

	// evil_ipc: periodically throw an invalid endpoint at the kernel; the
	// call must be rejected without a panic or any state change.
	if feature.EvilIPC && idx == demoSenderBIndex && k.tickCount%13 == 0 {
		klog.Info("evil_ipc: issued IpcReply to invalid ep (expect safe reject)")
		k.issueSyscall(idx, Syscall{Kind: SyscallIPCReply, EP: invalidDemoEP})
		k.evilIPCFired = true
		return
	}

	// ipc_demo_single_slow: one sender fires before any receiver exists,
	// exercising exactly one slowpath send, and the demo stays quiet
	// afterwards.
	if feature.IPCDemoSingleSlow {
		if !k.demoSingleSlowDone && idx == demoSenderAIndex {
			k.demoSingleSlowDone = true
			k.issueSyscall(idx, Syscall{Kind: SyscallIPCSend, EP: demoEP, Msg: demoMsgSenderA})
		}
		return
	}

	// endpoint_close_test: the endpoint owner closes it once the demo has
	// been through a full cycle.
	if feature.EndpointCloseTest && !k.endpointCloseDone && idx == demoReceiverIndex && k.tickCount >= 30 {
		k.endpointCloseDone = true
		k.closeEndpoint(demoEP)
		return
	}

	switch idx {
	case demoReceiverIndex:
		if k.demoMsgsDelivered < 2 {
			k.issueSyscall(idx, Syscall{Kind: SyscallIPCRecv, EP: demoEP})
			return
		}
		if k.demoRepliesSent < 2 {
			k.issueSyscall(idx, Syscall{Kind: SyscallIPCReply, EP: demoEP, Msg: demoReplyMsg})
			return
		}

		// Cycle finished; reset for the next round
		k.demoMsgsDelivered = 0
		k.demoRepliesSent = 0
		k.demoSentBySenderA = false
		k.demoSentBySenderB = false
		k.tasks[demoReceiverIndex].HasLastMsg = false
		k.tasks[demoReceiverIndex].LastMsg = 0
		klog.Info("user_program: demo cycle reset")

	case demoSenderAIndex:
		if !k.demoSentBySenderA &&
			k.endpoints[demoEP].recvWaiter == demoReceiverIndex && k.demoMsgsDelivered == 0 {
			k.demoSentBySenderA = true
			k.issueSyscall(idx, Syscall{Kind: SyscallIPCSend, EP: demoEP, Msg: demoMsgSenderA})
		}

	case demoSenderBIndex:
		// dead_partner_test: once a sender is parked for a reply, kill
		// the receiver and reply from a third party; the reply must
		// report undelivered without touching the parked sender.
		if feature.DeadPartnerTest && k.demoMsgsDelivered >= 1 {
			if !k.deadPartnerKilled {
				klog.Info("dead_partner_test: killing receiver task")
				k.markDead(demoReceiverIndex)
				k.deadPartnerKilled = true
				return
			}
			k.issueSyscall(idx, Syscall{Kind: SyscallIPCReply, EP: demoEP, Msg: demoReplyMsg})
			return
		}

		if !k.demoSentBySenderB &&
			k.endpoints[demoEP].recvWaiter == demoReceiverIndex && k.demoMsgsDelivered == 1 {
			k.demoSentBySenderB = true
			k.issueSyscall(idx, Syscall{Kind: SyscallIPCSend, EP: demoEP, Msg: demoMsgSenderB})
		}
	}
}
