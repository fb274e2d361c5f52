package vmm

import (
	"formalos/kernel"
	"formalos/kernel/mem/pmm"
)

var (
	// ErrInvalidMapping is returned when trying to look up a virtual
	// address that is not yet mapped in the walked tables.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errNoFrameAllocator = &kernel.Error{Module: "vmm", Message: "no frame allocator registered"}
)

// Map establishes a mapping between a virtual page and a physical memory
// frame in the page table hierarchy rooted at root. Calls to Map will use the
// registered frame allocator to initialize missing page tables at each paging
// level.
func Map(pm PhysMemory, root pmm.Frame, page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	var err *kernel.Error

	walk(pm, root, page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place, flag it as present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags)
			flushTLBEntryFn(page.Address())
			return true
		}

		// Next table does not yet exist; we need to allocate a physical
		// frame for it, map it and clear its contents.
		if !pte.HasFlags(FlagPresent) {
			if frameAllocator == nil {
				err = errNoFrameAllocator
				return false
			}

			var newTableFrame pmm.Frame
			newTableFrame, err = frameAllocator()
			if err != nil {
				return false
			}

			clearFrame(pm, newTableFrame)

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)

			// Interior tables on the user path also need the
			// user-accessible bit or the leaf flags would never
			// take effect.
			if flags&FlagUserAccessible != 0 {
				pte.SetFlags(FlagUserAccessible)
			}
		}

		return true
	})

	return err
}

// Unmap removes a mapping previously installed via a call to Map from the
// page table hierarchy rooted at root.
func Unmap(pm PhysMemory, root pmm.Frame, page Page) *kernel.Error {
	var err *kernel.Error

	walk(pm, root, page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to mark the
		// page as non-present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			*pte = 0
			flushTLBEntryFn(page.Address())
			return true
		}

		// Next table is not present; this is an invalid mapping
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		return true
	})

	return err
}

// InitUserPML4 initializes the user PML4 stored in userRoot from the kernel
// PML4 stored in kernelRoot: the kernel-half slots are shared by reference
// and the user-half slots are cleared so the new address space starts with an
// isolated low half.
func InitUserPML4(pm PhysMemory, kernelRoot, userRoot pmm.Frame) {
	kernelBase := kernelRoot.Address()
	userBase := userRoot.Address()

	for entry := uint64(0); entry < pageTableEntries; entry++ {
		var val uint64
		if entry >= kernelHalfFirstEntry {
			val = pm.ReadU64(kernelBase + entry*pageTableEntrySize)
		}
		pm.WriteU64(userBase+entry*pageTableEntrySize, val)
	}
}

// clearFrame zeroes the contents of a page table frame.
func clearFrame(pm PhysMemory, frame pmm.Frame) {
	base := frame.Address()
	for entry := uint64(0); entry < pageTableEntries; entry++ {
		pm.WriteU64(base+entry*pageTableEntrySize, 0)
	}
}
