// Package vmm implements the virtual memory subsystem of the kernel core. It
// has two halves that are kept deliberately separate so the logical half can
// be reasoned about (and eventually model-checked) without the hardware:
//
//   - a logical address-space layer that tracks VirtPage -> (PhysFrame,
//     flags) mappings per task with capacity and safety checks, and
//   - a page-table backend that applies the same mappings to a real 4-level
//     x86_64 table rooted at a PML4 frame, verifies every edit through a
//     translation walk, and gates CR3 switching.
//
// The backend accesses physical memory exclusively through the PhysMemory
// view so it can drive either the simulated machine or (on real hardware) an
// offset-mapped physical window.
package vmm

import (
	"formalos/kernel"
	"formalos/kernel/mem"
	"formalos/kernel/mem/pmm"
)

// Page describes a virtual memory page index.
type Page uint64

// Address returns the virtual memory address where this Page starts.
func (p Page) Address() uint64 {
	return uint64(p) << mem.PageShift
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. In the latter case, the input address will be rounded down to
// the page that contains it.
func PageFromAddress(virtAddr uint64) Page {
	return Page(virtAddr >> mem.PageShift)
}

// PhysMemory provides word-granularity access to physical memory. The
// page-table backend reads and writes table entries through this view.
type PhysMemory interface {
	// ReadU64 returns the 64-bit word stored at the supplied physical
	// address.
	ReadU64(physAddr uint64) uint64

	// WriteU64 stores a 64-bit word at the supplied physical address.
	WriteU64(physAddr uint64, val uint64)
}

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

var (
	// frameAllocator points to a frame allocator function registered using
	// SetFrameAllocator. The backend uses it to allocate interior page
	// tables during Map operations.
	frameAllocator FrameAllocatorFn

	// flushTLBEntryFn is invoked after any page-table edit that could be
	// cached by the TLB. The machine layer registers the real handler; the
	// default is a no-op so the logical layer can be tested standalone.
	flushTLBEntryFn = func(virtAddr uint64) {}
)

// SetFrameAllocator registers a frame allocator function that will be used by
// the vmm code when new physical frames need to be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) {
	frameAllocator = allocFn
}

// SetTLBFlushHandler registers the function invoked to invalidate the TLB
// entry of a virtual address after a page-table edit.
func SetTLBFlushHandler(flushFn func(virtAddr uint64)) {
	flushTLBEntryFn = flushFn
}
