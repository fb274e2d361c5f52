package vmm

import "formalos/kernel/mem/pmm"

// MemActionKind discriminates the variants of MemAction.
type MemActionKind uint8

const (
	// MemActionMap requests that a virtual page gets mapped to a physical
	// frame with a set of flags.
	MemActionMap MemActionKind = iota

	// MemActionUnmap requests that the mapping of a virtual page gets
	// removed.
	MemActionUnmap
)

// String implements fmt.Stringer for MemActionKind.
func (k MemActionKind) String() string {
	switch k {
	case MemActionMap:
		return "Map"
	case MemActionUnmap:
		return "Unmap"
	}

	return "Unknown"
}

// MemAction is the abstract page-granularity memory operation exchanged
// between the kernel state machine and the memory subsystem. Frame and Flags
// are only meaningful for Map actions.
type MemAction struct {
	Kind  MemActionKind
	Page  Page
	Frame pmm.Frame
	Flags PageTableEntryFlag
}

// MapAction returns a MemAction requesting that page gets mapped to frame
// with the supplied flags.
func MapAction(page Page, frame pmm.Frame, flags PageTableEntryFlag) MemAction {
	return MemAction{Kind: MemActionMap, Page: page, Frame: frame, Flags: flags}
}

// UnmapAction returns a MemAction requesting that the mapping for page gets
// removed.
func UnmapAction(page Page) MemAction {
	return MemAction{Kind: MemActionUnmap, Page: page}
}
