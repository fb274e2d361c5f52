package vmm

const (
	// pageLevels indicates the number of page table levels supported by
	// the modeled x86_64 target.
	pageLevels = 4

	// pageTableEntries is the number of entries in a page table at every
	// level.
	pageTableEntries = 512

	// pageTableEntrySize is the size of a page table entry in bytes.
	pageTableEntrySize = 8

	// ptePhysPageMask is a mask that allows us to extract the physical
	// memory address pointed to by a page table entry. For this particular
	// architecture, bits 12-51 contain the physical memory address.
	ptePhysPageMask = uint64(0x000ffffffffff000)

	// KernelSpaceStart marks the beginning of the kernel half of the
	// virtual address space (the canonical high half). Every task shares
	// the kernel half; the low half is private per address space.
	KernelSpaceStart = uint64(0xffff800000000000)

	// kernelHalfFirstEntry is the first PML4 slot covered by the kernel
	// half. Slots [kernelHalfFirstEntry, pageTableEntries) are copied from
	// the kernel PML4 into every user PML4 at initialization; slots below
	// it are left empty so user low halves stay isolated.
	kernelHalfFirstEntry = 256
)

var (
	// pageLevelShifts defines the shift required to extract the page table
	// index of each level from a virtual address.
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)

// PageTableEntryFlag describes a flag that can be applied to a page table
// entry.
type PageTableEntryFlag uint64

const (
	// FlagPresent is set when the page is available in memory and not
	// swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this
	// page. If not set only kernel code can access this page.
	FlagUserAccessible

	// FlagNoExecute is set if code execution from this page is disallowed.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)
