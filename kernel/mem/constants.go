// Package mem provides the primitive memory size and page constants shared
// by the physical and virtual memory subsystems.
package mem

const (
	// PointerShift is equal to log2(the size of a page table entry). The
	// entry size for the modeled x86_64 target is (1 << PointerShift).
	PointerShift = 3

	// PageShift is equal to log2(PageSize). This constant is used when we
	// need to convert a physical address to a page number (shift right by
	// PageShift) and vice-versa.
	PageShift = 12

	// PageSize defines the page size of the modeled target in bytes.
	PageSize = Size(1 << PageShift)
)
