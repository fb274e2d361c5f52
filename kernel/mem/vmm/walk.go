package vmm

import "formalos/kernel/mem/pmm"

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and a pointer to a working copy of
// the page table entry for that level. If the function returns false, then
// the page walk is aborted; if it mutates the entry, walk stores the updated
// value back into the table before continuing.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address starting at
// the PML4 stored in root. It calls the supplied walkFn with the page table
// entry that corresponds to each page table level, reading and writing the
// entries through the supplied physical memory view.
func walk(pm PhysMemory, root pmm.Frame, virtAddr uint64, walkFn pageTableWalker) {
	tableAddr := root.Address()

	for level := uint8(0); level < pageLevels; level++ {
		// Extract the bits from the virtual address that correspond to
		// the index in this level's page table
		entryIndex := (virtAddr >> pageLevelShifts[level]) & (pageTableEntries - 1)
		entryAddr := tableAddr + entryIndex*pageTableEntrySize

		pte := pageTableEntry(pm.ReadU64(entryAddr))
		orig := pte

		ok := walkFn(level, &pte)
		if pte != orig {
			pm.WriteU64(entryAddr, uint64(pte))
		}
		if !ok {
			return
		}

		tableAddr = pte.Frame().Address()
	}
}
