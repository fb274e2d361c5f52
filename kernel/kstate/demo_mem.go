package kstate

import (
	"formalos/kernel/feature"
	"formalos/kernel/klog"
	"formalos/kernel/mem/pmm"
	"formalos/kernel/mem/vmm"
)

// memTestPattern is written through every fresh demo mapping and read back to
// prove the translation actually reaches the mapped frame.
const memTestPattern = uint64(0xdeadbeefdeadbeef)

// demoPageForTask returns the demo virtual page assigned to a task. The two
// user tasks share one page index on purpose: the dumps then show the same
// virtual address resolving to different frames in different address spaces.
func (k *KernelState) demoPageForTask(idx int) vmm.Page {
	if idx == kernelTaskIndex {
		return demoPageKernel
	}

	return demoPageUser
}

// demoFlagsForTask returns the page flags the demo uses for a task.
func (k *KernelState) demoFlagsForTask(idx int) vmm.PageTableEntryFlag {
	if idx == kernelTaskIndex {
		return vmm.FlagPresent | vmm.FlagRW
	}

	return vmm.FlagPresent | vmm.FlagRW | vmm.FlagUserAccessible
}

// demoMemStep decides whether the Running task requests a synthetic memory
// action this tick. The request lands in the task's pending slot where the
// pure transition function picks it up on a later tick.
func (k *KernelState) demoMemStep(idx int) {
	if !k.validTaskIndex(idx) || k.tasks[idx].State != TaskRunning {
		return
	}
	if k.tasks[idx].hasPendingMemAction {
		return
	}

	// evil_double_map: request the same Map twice; applying the second one
	// must fail-stop with AlreadyMapped.
	if feature.EvilDoubleMap && idx == demoSenderAIndex {
		if k.evilMemStage >= 2 || !k.demoFrame[idx].Valid() {
			return
		}

		if k.evilMemStage == 0 {
			klog.Info("evil_double_map: Map #1")
		} else {
			klog.Info("evil_double_map: Map #2 (expect AlreadyMapped)")
		}
		k.evilMemStage++

		k.tasks[idx].pendingMemAction = vmm.MapAction(k.demoPageForTask(idx), k.demoFrame[idx], k.demoFlagsForTask(idx))
		k.tasks[idx].hasPendingMemAction = true
		return
	}

	// evil_unmap_not_mapped: request an Unmap of a page that was never
	// mapped; applying it must fail-stop with NotMapped.
	if feature.EvilUnmapNotMapped && idx == demoSenderAIndex {
		if k.evilMemStage >= 1 {
			return
		}
		k.evilMemStage++

		klog.Info("evil_unmap_not_mapped: Unmap (expect NotMapped)")
		k.tasks[idx].pendingMemAction = vmm.UnmapAction(k.demoPageForTask(idx) + 0x10)
		k.tasks[idx].hasPendingMemAction = true
		return
	}

	// pf_demo: touch a virtual page nothing ever mapped. The unguarded
	// fault is fatal for the run.
	if feature.PFDemo && idx == kernelTaskIndex && !k.pfDemoDone && k.tickCount >= 10 {
		k.pfDemoDone = true
		klog.Info("pf_demo: touching unmapped page")

		if root, ok := k.addressSpaces[k.tasks[idx].AddressSpaceID].RootPageFrame(); ok {
			if _, err := k.hw.ReadVirt(root, (demoPageKernel + 0x33).Address()); err != nil {
				k.shouldHalt = true
			}
		}
		return
	}

	// The regular demo cycle: alternate Map and Unmap of the task's demo
	// page on a fixed tick cadence once its frame exists.
	if k.tickCount%5 != 2 || !k.demoFrame[idx].Valid() {
		return
	}

	if !k.demoMapped[idx] {
		klog.Info(" mem_demo: requesting Map (for current task)")
		k.tasks[idx].pendingMemAction = vmm.MapAction(k.demoPageForTask(idx), k.demoFrame[idx], k.demoFlagsForTask(idx))
	} else {
		klog.Info(" mem_demo: requesting Unmap (for current task)")
		k.tasks[idx].pendingMemAction = vmm.UnmapAction(k.demoPageForTask(idx))
	}
	k.tasks[idx].hasPendingMemAction = true
}

// allocDemoFrame satisfies one outstanding demo frame request from the frame
// source. Exhaustion of the source is a capacity fail-stop: the kernel logs
// and halts.
func (k *KernelState) allocDemoFrame(idx int) {
	if !k.validTaskIndex(idx) {
		return
	}

	frame, err := k.frames.AllocFrame()
	if err != nil {
		klog.Error(" no more usable frames; halting")
		k.shouldHalt = true
		return
	}

	k.demoFrame[idx] = frame
	k.demoFrameWanted[idx] = false
	k.pushEvent(Event{Kind: EventFrameAllocated})
	klog.Info(" allocated demo frame")
	klog.InfoU64(" task_index", uint64(idx))
	klog.InfoU64(" frame_index", uint64(frame))
}

// applyMemAction consumes a task's pending memory action and applies it: the
// logical address space first, then the backing page tables, then the
// translation check and a write/read probe through the new mapping. Every
// failure on this path is a memory-safety fail-stop.
func (k *KernelState) applyMemAction(idx int, action vmm.MemAction) {
	if !k.validTaskIndex(idx) {
		return
	}

	k.tasks[idx].hasPendingMemAction = false
	k.tasks[idx].pendingMemAction = vmm.MemAction{}

	aspace := &k.addressSpaces[k.tasks[idx].AddressSpaceID]

	if err := aspace.Apply(action); err != nil {
		klog.Error(" address_space.apply failed")
		panicFn(err)
		return
	}
	klog.Info(" address_space.apply: OK")

	root, ok := aspace.RootPageFrame()
	if !ok {
		klog.Error(" mem action dropped: address space has no root_page_frame")
		return
	}

	if err := vmm.ApplyMemAction(k.hw, root, action); err != nil {
		klog.Error(" page table edit failed verification")
		panicFn(err)
		return
	}

	if action.Page == k.demoPageForTask(idx) {
		k.demoMapped[idx] = action.Kind == vmm.MemActionMap
	}

	if action.Kind == vmm.MemActionMap {
		k.memTestMapping(root, action)
	}

	k.pushEvent(Event{Kind: EventMemActionApplied, Task: k.tasks[idx].ID, Action: action})
}

// memTestMapping writes a probe value through the fresh mapping and reads it
// back, proving the virtual page really reaches the mapped frame.
func (k *KernelState) memTestMapping(root pmm.Frame, action vmm.MemAction) {
	virtAddr := action.Page.Address()

	if err := k.hw.WriteVirt(root, virtAddr, memTestPattern); err != nil {
		klog.Error(" mem_test: write through mapping failed")
		return
	}

	readBack, err := k.hw.ReadVirt(root, virtAddr)
	if err != nil {
		klog.Error(" mem_test: read through mapping failed")
		return
	}

	if readBack == memTestPattern {
		klog.Info(" mem_test: OK (value matched)")
	} else {
		klog.Error(" mem_test: MISMATCH!")
	}
}
