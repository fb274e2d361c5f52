// Package machine implements the simulated x86_64 machine the kernel core
// runs against: a flat physical memory, the CR3 register, a TLB flush
// counter and the loader-provided memory map. The machine satisfies the
// contracts the core expects from real hardware (vmm.PhysMemory,
// vmm.CR3Writer, the boot contract) so the state machine above it cannot
// tell the difference.
package machine

import (
	"encoding/binary"

	"formalos/kernel"
	"formalos/kernel/hal/bootinfo"
	"formalos/kernel/irq"
	"formalos/kernel/kfmt"
	"formalos/kernel/mem"
	"formalos/kernel/mem/pmm"
	"formalos/kernel/mem/vmm"
)

const (
	// lowMemEnd marks the end of the usable low-memory area; the range up
	// to highMemBase is reserved for legacy BIOS structures, matching the
	// map a BIOS loader reports.
	lowMemEnd   = 0x9fc00
	highMemBase = 0x100000

	// pageTableBase is the physical address of the first frame reserved
	// for the kernel's early page tables. The kernel PML4 lives in the
	// first reserved frame.
	pageTableBase = 0x30000

	// reservedTableFrames is the number of frames reserved at
	// pageTableBase for boot-time page tables.
	reservedTableFrames = 16

	// MinMemSize is the smallest physical memory size the machine
	// accepts: enough for the legacy area plus a few high-memory frames.
	MinMemSize = mem.Size(highMemBase) + 64*mem.PageSize
)

var (
	errMemTooSmall = &kernel.Error{Module: "machine", Message: "physical memory size below MinMemSize"}

	// panicFn is mocked by tests that exercise wild physical accesses.
	panicFn = kfmt.Panic

	errPhysAccess = &kernel.Error{Module: "machine", Message: "physical access outside installed memory"}
)

// Machine models the hardware state owned by the kernel.
type Machine struct {
	mem []byte

	cr3        pmm.Frame
	tlbFlushes uint64
}

// New creates a machine with the requested amount of physical memory, rounded
// up to a whole page.
func New(memSize mem.Size) (*Machine, *kernel.Error) {
	memSize = (memSize + mem.PageSize - 1) &^ (mem.PageSize - 1)
	if memSize < MinMemSize {
		return nil, errMemTooSmall
	}

	return &Machine{
		mem: make([]byte, memSize),
		cr3: pmm.InvalidFrame,
	}, nil
}

// ReadU64 returns the 64-bit word stored at the supplied physical address.
// Accesses outside the installed memory raise #GP and are fail-stop: they can
// only be produced by a kernel bug.
func (m *Machine) ReadU64(physAddr uint64) uint64 {
	if physAddr+8 > uint64(len(m.mem)) {
		irq.ReportGeneralProtection(physAddr)
		panicFn(errPhysAccess)
		return 0
	}

	return binary.LittleEndian.Uint64(m.mem[physAddr:])
}

// WriteU64 stores a 64-bit word at the supplied physical address.
func (m *Machine) WriteU64(physAddr uint64, val uint64) {
	if physAddr+8 > uint64(len(m.mem)) {
		irq.ReportGeneralProtection(physAddr)
		panicFn(errPhysAccess)
		return
	}

	binary.LittleEndian.PutUint64(m.mem[physAddr:], val)
}

// WriteCR3 loads the supplied PML4 frame into CR3.
func (m *Machine) WriteCR3(root pmm.Frame) {
	m.cr3 = root
}

// ReadCR3 returns the PML4 frame currently loaded in CR3.
func (m *Machine) ReadCR3() pmm.Frame {
	return m.cr3
}

// FlushTLBEntry invalidates the cached translation of a virtual address. The
// simulated TLB only keeps a shootdown count for observability.
func (m *Machine) FlushTLBEntry(virtAddr uint64) {
	m.tlbFlushes++
}

// TLBFlushCount returns the number of TLB shootdowns performed so far.
func (m *Machine) TLBFlushCount() uint64 {
	return m.tlbFlushes
}

// BootInfo builds the boot contract a BIOS loader would hand over for this
// machine: the legacy low-memory split plus one big usable high-memory
// region. Physical memory is identity-mapped, so PhysMemOffset is zero.
func (m *Machine) BootInfo() *bootinfo.BootInfo {
	return &bootinfo.BootInfo{
		Regions: []bootinfo.Region{
			{PhysAddress: 0, Length: lowMemEnd, Type: bootinfo.RegionUsable},
			{PhysAddress: lowMemEnd, Length: highMemBase - lowMemEnd, Type: bootinfo.RegionReserved},
			{PhysAddress: highMemBase, Length: uint64(len(m.mem)) - highMemBase, Type: bootinfo.RegionUsable},
		},
		PhysMemOffset: 0,
	}
}

// ReservedFrameRange returns the frame range the machine reserves for its
// boot-time page tables. The frame allocator must exclude it.
func (m *Machine) ReservedFrameRange() (pmm.Frame, pmm.Frame) {
	start := pmm.FrameFromAddress(pageTableBase)
	return start, start + reservedTableFrames - 1
}

// InitKernelPageTables prepares the kernel PML4 in the reserved table area,
// wires one shared high-half slot, loads CR3 with the new root and returns
// it. This mirrors what the boot path does before handing control to the
// kernel proper.
func (m *Machine) InitKernelPageTables() pmm.Frame {
	kernelRoot := pmm.FrameFromAddress(pageTableBase)
	sharedPDPT := kernelRoot + 1

	for frame := kernelRoot; frame <= sharedPDPT; frame++ {
		base := frame.Address()
		for off := uint64(0); off < uint64(mem.PageSize); off += 8 {
			binary.LittleEndian.PutUint64(m.mem[base+off:], 0)
		}
	}

	// PML4 slot 256 (the first kernel-half slot) points at the shared
	// high-half PDPT so every user PML4 created later inherits it.
	slotAddr := kernelRoot.Address() + 256*8
	m.WriteU64(slotAddr, sharedPDPT.Address()|uint64(vmm.FlagPresent|vmm.FlagRW))

	m.cr3 = kernelRoot
	return kernelRoot
}

// ReadVirt reads a 64-bit word through the page table hierarchy rooted at
// root. A failed translation raises the unguarded page-fault report and
// returns an error.
func (m *Machine) ReadVirt(root pmm.Frame, virtAddr uint64) (uint64, *kernel.Error) {
	physAddr, err := vmm.Translate(m, root, virtAddr)
	if err != nil {
		irq.ReportUnguardedPageFault(virtAddr)
		return 0, err
	}

	return m.ReadU64(physAddr), nil
}

// WriteVirt writes a 64-bit word through the page table hierarchy rooted at
// root. A failed translation raises the unguarded page-fault report and
// returns an error.
func (m *Machine) WriteVirt(root pmm.Frame, virtAddr uint64, val uint64) *kernel.Error {
	physAddr, err := vmm.Translate(m, root, virtAddr)
	if err != nil {
		irq.ReportUnguardedPageFault(virtAddr)
		return err
	}

	m.WriteU64(physAddr, val)
	return nil
}
