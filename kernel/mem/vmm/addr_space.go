package vmm

import (
	"formalos/kernel"
	"formalos/kernel/mem/pmm"
)

// MaxMappings is the number of page mappings a single address space can
// track. The prototype keeps this deliberately small; the invariant checker
// treats the limit as a hard capacity.
const MaxMappings = 64

var (
	// ErrAlreadyMapped is returned when a Map action targets a virtual
	// page that is already present in the address space.
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "AlreadyMapped: virtual page is already mapped"}

	// ErrNotMapped is returned when an Unmap action targets a virtual page
	// that is not present in the address space.
	ErrNotMapped = &kernel.Error{Module: "vmm", Message: "NotMapped: virtual page has no mapping"}

	// ErrCapacityExceeded is returned when a Map action would exceed
	// MaxMappings.
	ErrCapacityExceeded = &kernel.Error{Module: "vmm", Message: "CapacityExceeded: address space mapping table is full"}

	// ErrUserMappingInKernelSpace is returned when a user address space
	// attempts to map a page inside the shared kernel half.
	ErrUserMappingInKernelSpace = &kernel.Error{Module: "vmm", Message: "user mapping targets kernel-space range"}

	// ErrUserMappingMissingUserFlag is returned when a user address space
	// maps a page without FlagUserAccessible.
	ErrUserMappingMissingUserFlag = &kernel.Error{Module: "vmm", Message: "user mapping is missing the user-accessible flag"}

	// ErrKernelMappingHasUserFlag is returned when the kernel address
	// space maps a page with FlagUserAccessible set.
	ErrKernelMappingHasUserFlag = &kernel.Error{Module: "vmm", Message: "kernel mapping carries the user-accessible flag"}
)

// AddressSpaceKind discriminates the kernel address space from user ones.
type AddressSpaceKind uint8

const (
	// AddressSpaceKernel marks the address space owned by task 0; it is
	// backed by the kernel PML4 that the machine booted with.
	AddressSpaceKernel AddressSpaceKind = iota

	// AddressSpaceUser marks a user address space with a private PML4
	// root and an isolated low half.
	AddressSpaceUser
)

// String implements fmt.Stringer for AddressSpaceKind.
func (k AddressSpaceKind) String() string {
	if k == AddressSpaceKernel {
		return "Kernel"
	}

	return "User"
}

// Mapping associates a virtual page with a physical frame and its flags.
type Mapping struct {
	Page  Page
	Frame pmm.Frame
	Flags PageTableEntryFlag
}

// MappingVisitor defines a visitor function invoked by VisitMappings for each
// live mapping of an address space.
type MappingVisitor func(m *Mapping)

// AddressSpace tracks the logical page mappings of one task. It performs the
// double-map/unmap and kernel/user separation checks; the page-table backend
// mirrors its contents into the real tables only after the logical update
// succeeds.
//
// Mapping order is not part of the contract: removal uses swap-remove and
// enumeration order can change after any Unmap.
type AddressSpace struct {
	kind AddressSpaceKind

	// rootPageFrame holds the PML4 frame backing this address space, or
	// pmm.InvalidFrame while no root has been assigned.
	rootPageFrame pmm.Frame

	mappings     [MaxMappings]Mapping
	mappingCount int
}

// NewAddressSpace returns an empty address space of the given kind with no
// backing PML4 root.
func NewAddressSpace(kind AddressSpaceKind) AddressSpace {
	return AddressSpace{kind: kind, rootPageFrame: pmm.InvalidFrame}
}

// Kind returns the kind of this address space.
func (a *AddressSpace) Kind() AddressSpaceKind {
	return a.kind
}

// RootPageFrame returns the PML4 frame backing this address space and whether
// a root has been assigned.
func (a *AddressSpace) RootPageFrame() (pmm.Frame, bool) {
	return a.rootPageFrame, a.rootPageFrame.Valid()
}

// SetRootPageFrame assigns the PML4 frame backing this address space.
func (a *AddressSpace) SetRootPageFrame(root pmm.Frame) {
	a.rootPageFrame = root
}

// MappingCount returns the number of live mappings.
func (a *AddressSpace) MappingCount() int {
	return a.mappingCount
}

// VisitMappings invokes the supplied visitor for each live mapping. The
// address space stays oblivious of logging; callers that want to dump state
// provide the output themselves.
func (a *AddressSpace) VisitMappings(visit MappingVisitor) {
	for i := 0; i < a.mappingCount; i++ {
		visit(&a.mappings[i])
	}
}

// Translate returns the physical frame and flags that the supplied virtual
// page maps to. The second return value reports whether a mapping exists.
func (a *AddressSpace) Translate(page Page) (*Mapping, bool) {
	for i := 0; i < a.mappingCount; i++ {
		if a.mappings[i].Page == page {
			return &a.mappings[i], true
		}
	}

	return nil, false
}

// checkMapSafety enforces the kernel/user separation rules for a Map action.
func (a *AddressSpace) checkMapSafety(action MemAction) *kernel.Error {
	switch a.kind {
	case AddressSpaceUser:
		if action.Page.Address() >= KernelSpaceStart {
			return ErrUserMappingInKernelSpace
		}
		if action.Flags&FlagUserAccessible == 0 {
			return ErrUserMappingMissingUserFlag
		}
	case AddressSpaceKernel:
		if action.Flags&FlagUserAccessible != 0 {
			return ErrKernelMappingHasUserFlag
		}
	}

	return nil
}

// Apply performs a MemAction against the logical mapping table.
//
// Map fails with ErrAlreadyMapped if the page is present, with
// ErrCapacityExceeded when the table is full and with one of the separation
// errors when the action violates the kernel/user split. Unmap fails with
// ErrNotMapped when the page has no mapping.
func (a *AddressSpace) Apply(action MemAction) *kernel.Error {
	switch action.Kind {
	case MemActionMap:
		if _, found := a.Translate(action.Page); found {
			return ErrAlreadyMapped
		}
		if err := a.checkMapSafety(action); err != nil {
			return err
		}
		if a.mappingCount == MaxMappings {
			return ErrCapacityExceeded
		}

		a.mappings[a.mappingCount] = Mapping{Page: action.Page, Frame: action.Frame, Flags: action.Flags}
		a.mappingCount++
		return nil
	case MemActionUnmap:
		for i := 0; i < a.mappingCount; i++ {
			if a.mappings[i].Page == action.Page {
				// swap-remove; mapping order is abstracted
				a.mappings[i] = a.mappings[a.mappingCount-1]
				a.mappingCount--
				return nil
			}
		}
		return ErrNotMapped
	}

	return ErrNotMapped
}
