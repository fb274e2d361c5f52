package kstate

import (
	"formalos/kernel/klog"
	"formalos/kernel/mem/vmm"
)

// DumpEvents prints the whole abstract trace followed by the per-task
// address-space state and the endpoint table. The section headers are stable
// strings that external harnesses anchor on.
func (k *KernelState) DumpEvents() {
	klog.Info("=== KernelState Event Log Dump ===")
	for i := 0; i < k.events.length; i++ {
		logEvent(k.events.events[i])
	}
	if k.events.dropped > 0 {
		klog.Info("EVENT: LogTruncated")
		klog.InfoU64(" dropped", k.events.dropped)
	}
	klog.Info("=== End of Event Log ===")

	klog.Info("=== AddressSpace Dump (per task) ===")
	for i := 0; i < k.numTasks; i++ {
		task := &k.tasks[i]
		aspace := &k.addressSpaces[task.AddressSpaceID]

		klog.Info(" Task AddressSpace:")
		klog.InfoU64("  task_index", uint64(i))
		klog.InfoU64("  task_id", uint64(task.ID))
		klog.Infof("  state = %s", task.State)
		klog.Infof("  kind = %s", aspace.Kind())

		if root, ok := aspace.RootPageFrame(); ok {
			klog.InfoU64("  root_page_frame_index", uint64(root))
		} else {
			klog.Info("  root_page_frame_index = None")
		}

		klog.InfoU64("  address_space_id", uint64(task.AddressSpaceID))
		klog.InfoU64("  mapping_count", uint64(aspace.MappingCount()))

		aspace.VisitMappings(func(m *vmm.Mapping) {
			klog.Info("  MAPPING:")
			klog.InfoU64("    virt_page_index", uint64(m.Page))
			klog.InfoU64("    phys_frame_index", uint64(m.Frame))
			klog.InfoU64("    flags_bits", uint64(m.Flags))
		})

		if task.HasLastMsg || task.HasLastReply {
			klog.Info("  IPC:")
			if task.HasLastMsg {
				klog.InfoU64("    last_msg", uint64(task.LastMsg))
			}
			if task.HasLastReply {
				klog.InfoU64("    last_reply", uint64(task.LastReply))
			}
		}
	}
	klog.Info("=== End of AddressSpace Dump ===")

	klog.Info("=== Endpoint Dump ===")
	for e := range k.endpoints {
		ep := &k.endpoints[e]

		klog.Info(" ENDPOINT:")
		klog.InfoU64("  ep_id", uint64(ep.ID))

		if ep.closed {
			klog.Info("  closed = true")
		}

		if w := ep.recvWaiter; w != noWaiter {
			klog.InfoU64("  recv_waiter_task_index", uint64(w))
			if k.validTaskIndex(w) {
				klog.InfoU64("  recv_waiter_task_id", uint64(k.tasks[w].ID))
			}
		} else {
			klog.Info("  recv_waiter_task_index = None")
		}

		klog.InfoU64("  send_queue_len", uint64(ep.sendQueue.length))
		ep.sendQueue.visit(func(idx int) bool {
			klog.InfoU64("   send_queue_task_index", uint64(idx))
			if k.validTaskIndex(idx) {
				klog.InfoU64("   send_queue_task_id", uint64(k.tasks[idx].ID))
			}
			return true
		})

		klog.InfoU64("  reply_queue_len", uint64(ep.replyQueue.length))
		ep.replyQueue.visit(func(idx int) bool {
			klog.InfoU64("   reply_queue_task_index", uint64(idx))
			if k.validTaskIndex(idx) {
				klog.InfoU64("   reply_queue_task_id", uint64(k.tasks[idx].ID))
			}
			return true
		})
	}
	klog.Info("=== End of Endpoint Dump ===")
}
