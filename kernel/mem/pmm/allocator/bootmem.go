// Package allocator implements the physical frame source used by the kernel
// core. It hands out 4 KiB frames from the Usable regions of the loader
// memory map, in ascending address order, and never frees them; the
// prototype marks frames used for its whole lifetime.
package allocator

import (
	"formalos/kernel"
	"formalos/kernel/hal/bootinfo"
	"formalos/kernel/klog"
	"formalos/kernel/mem"
	"formalos/kernel/mem/pmm"
)

var errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}

// BootMemAllocator implements a rudimentary physical memory allocator which is
// used to bootstrap the kernel.
//
// The allocator implementation uses the memory region information provided by
// the loader to detect free memory blocks and return the next available free
// frame. Allocations are tracked via an internal counter that contains the
// last allocated frame.
//
// Due to the way that the allocator works, it is not possible to free
// allocated frames.
type BootMemAllocator struct {
	bootInfo *bootinfo.BootInfo

	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// lastAllocFrame tracks the last allocated frame number.
	lastAllocFrame pmm.Frame

	// Keep track of the region the loader reserved for the kernel image
	// and boot structures so we exclude it.
	reservedStartFrame, reservedEndFrame pmm.Frame
}

// Init sets up the allocator internal state. The frame range
// [reservedStart, reservedEnd] is excluded from allocations even when the
// memory map reports it as usable.
func (alloc *BootMemAllocator) Init(bi *bootinfo.BootInfo, reservedStart, reservedEnd pmm.Frame) {
	alloc.bootInfo = bi
	alloc.reservedStartFrame = reservedStart
	alloc.reservedEndFrame = reservedEnd
}

// AllocCount returns the total number of frames handed out so far.
func (alloc *BootMemAllocator) AllocCount() uint64 {
	return alloc.allocCount
}

// AllocFrame scans the system memory regions reported by the loader and
// reserves the next available free frame.
//
// AllocFrame returns an error if no more memory can be allocated.
func (alloc *BootMemAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	var err = errBootAllocOutOfMemory

	alloc.bootInfo.VisitMemRegions(func(region *bootinfo.Region) bool {
		// Ignore reserved regions and regions smaller than a single page
		if region.Type != bootinfo.RegionUsable || region.Length < uint64(mem.PageSize) {
			return true
		}

		// Reported addresses may not be page-aligned; round up to get
		// the start frame and round down to get the end frame
		pageSizeMinus1 := uint64(mem.PageSize - 1)
		regionStartFrame := pmm.Frame(((region.PhysAddress + pageSizeMinus1) & ^pageSizeMinus1) >> mem.PageShift)
		regionEndFrame := pmm.Frame(((region.PhysAddress+region.Length) & ^pageSizeMinus1)>>mem.PageShift) - 1

		// Skip over already allocated regions
		if alloc.allocCount != 0 && alloc.lastAllocFrame >= regionEndFrame {
			return true
		}

		if alloc.allocCount == 0 || alloc.lastAllocFrame < regionStartFrame {
			// First allocation or we exhausted the previous region
			// and need to jump to this one
			alloc.lastAllocFrame = regionStartFrame
		} else {
			alloc.lastAllocFrame++
		}

		// If the candidate falls inside the reserved kernel range we
		// need to jump to the frame following the reserved range
		if alloc.lastAllocFrame >= alloc.reservedStartFrame && alloc.lastAllocFrame <= alloc.reservedEndFrame {
			alloc.lastAllocFrame = alloc.reservedEndFrame + 1
		}

		// The above adjustment might push lastAllocFrame outside of the
		// region end (e.g the reserved range ends at the last page in
		// the region)
		if alloc.lastAllocFrame > regionEndFrame {
			return true
		}

		err = nil
		return false
	})

	if err != nil {
		return pmm.InvalidFrame, errBootAllocOutOfMemory
	}

	alloc.allocCount++
	return alloc.lastAllocFrame, nil
}

// PrintMemoryMap scans the memory region information provided by the loader
// and logs the system's memory map.
func (alloc *BootMemAllocator) PrintMemoryMap() {
	klog.Info("boot_mem_alloc: memory map dump start")

	var totalFree mem.Size
	var index uint64
	alloc.bootInfo.VisitMemRegions(func(region *bootinfo.Region) bool {
		klog.Info(" mem_region:")
		klog.InfoU64("  index", index)
		klog.InfoU64("  start_phys", region.PhysAddress)
		klog.InfoU64("  end_phys", region.PhysAddress+region.Length)
		klog.Infof("  type = %s", region.Type)

		if region.Type == bootinfo.RegionUsable {
			totalFree += mem.Size(region.Length)
		}

		index++
		return true
	})

	klog.InfoU64("boot_mem_alloc: available_kb", uint64(totalFree/mem.Kb))
	klog.InfoU64("boot_mem_alloc: reserved_start_frame", uint64(alloc.reservedStartFrame))
	klog.InfoU64("boot_mem_alloc: reserved_end_frame", uint64(alloc.reservedEndFrame))
	klog.Info("boot_mem_alloc: memory map dump end")
}
