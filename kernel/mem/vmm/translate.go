package vmm

import (
	"formalos/kernel"
	"formalos/kernel/mem/pmm"
)

// Translate returns the physical address that corresponds to the supplied
// virtual address in the page table hierarchy rooted at root, or
// ErrInvalidMapping if the virtual address does not correspond to a mapped
// physical address.
func Translate(pm PhysMemory, root pmm.Frame, virtAddr uint64) (uint64, *kernel.Error) {
	var (
		err   *kernel.Error
		frame pmm.Frame
	)

	walk(pm, root, virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pteLevel == pageLevels-1 {
			frame = pte.Frame()
		}
		return true
	})

	if err != nil {
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address
	// and appending the offset from the virtual address
	return frame.Address() + PageOffset(virtAddr), nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uint64) uint64 {
	return virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1)
}
