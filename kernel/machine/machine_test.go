package machine

import (
	"bytes"
	"strings"
	"testing"

	"formalos/kernel"
	"formalos/kernel/hal/bootinfo"
	"formalos/kernel/klog"
	"formalos/kernel/mem"
	"formalos/kernel/mem/pmm"
	"formalos/kernel/mem/vmm"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()

	m, err := New(4 * mem.Mb)
	if err != nil {
		t.Fatalf("unexpected error creating machine: %v", err)
	}
	return m
}

func TestNewRejectsTinyMemory(t *testing.T) {
	if _, err := New(64 * mem.Kb); err != errMemTooSmall {
		t.Fatalf("expected errMemTooSmall; got %v", err)
	}
}

func TestPhysReadWrite(t *testing.T) {
	m := newTestMachine(t)

	m.WriteU64(0x1000, 0xdeadbeefdeadbeef)
	if got := m.ReadU64(0x1000); got != 0xdeadbeefdeadbeef {
		t.Fatalf("expected to read back the written value; got 0x%x", got)
	}
}

func TestWildPhysAccessRaisesGP(t *testing.T) {
	defer func(origPanic func(interface{})) {
		panicFn = origPanic
	}(panicFn)

	var panicked interface{}
	panicFn = func(e interface{}) { panicked = e }

	var buf bytes.Buffer
	klog.SetOutputSink(&buf)
	defer klog.SetOutputSink(nil)

	m := newTestMachine(t)
	m.ReadU64(uint64(len(m.mem)))

	if panicked != errPhysAccess {
		t.Fatalf("expected wild access to panic with errPhysAccess; got %v", panicked)
	}
	if !strings.Contains(buf.String(), "[EXC] #GP") {
		t.Fatalf("expected a #GP report; got %q", buf.String())
	}
}

func TestBootInfoShape(t *testing.T) {
	m := newTestMachine(t)
	bi := m.BootInfo()

	if len(bi.Regions) != 3 {
		t.Fatalf("expected 3 regions; got %d", len(bi.Regions))
	}

	var usable uint64
	bi.VisitMemRegions(func(r *bootinfo.Region) bool {
		if r.Type == bootinfo.RegionUsable {
			usable += r.Length
		}
		return true
	})

	if exp := uint64(len(m.mem)) - (highMemBase - lowMemEnd); usable != exp {
		t.Fatalf("expected %d usable bytes; got %d", exp, usable)
	}
}

func TestInitKernelPageTables(t *testing.T) {
	m := newTestMachine(t)
	root := m.InitKernelPageTables()

	if m.ReadCR3() != root {
		t.Fatal("expected CR3 to hold the kernel root after init")
	}

	resStart, resEnd := m.ReservedFrameRange()
	if root < resStart || root > resEnd {
		t.Fatalf("expected kernel root %v inside the reserved range [%v, %v]", root, resStart, resEnd)
	}

	// The first kernel-half PML4 slot must be present and point into the
	// reserved table area
	slot := m.ReadU64(root.Address() + 256*8)
	if slot&uint64(vmm.FlagPresent) == 0 {
		t.Fatal("expected PML4 slot 256 to be present")
	}
	if sharedFrame := pmm.FrameFromAddress(slot &^ 0xfff); sharedFrame < resStart || sharedFrame > resEnd {
		t.Fatalf("expected shared PDPT frame %v inside the reserved range", sharedFrame)
	}
}

func TestVirtAccessThroughMappedPage(t *testing.T) {
	m := newTestMachine(t)
	root := m.InitKernelPageTables()

	defer func() {
		vmm.SetFrameAllocator(nil)
	}()

	next := pmm.FrameFromAddress(highMemBase)
	vmm.SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
		frame := next
		next++
		return frame, nil
	})

	page := vmm.PageFromAddress(0x100000)
	frame := pmm.FrameFromAddress(0x200000)

	if err := vmm.Map(m, root, page, frame, vmm.FlagPresent|vmm.FlagRW); err != nil {
		t.Fatalf("unexpected Map error: %v", err)
	}

	if err := m.WriteVirt(root, page.Address()+8, 0x1122334455667788); err != nil {
		t.Fatalf("unexpected WriteVirt error: %v", err)
	}

	got, err := m.ReadVirt(root, page.Address()+8)
	if err != nil {
		t.Fatalf("unexpected ReadVirt error: %v", err)
	}
	if got != 0x1122334455667788 {
		t.Fatalf("expected to read back the written value; got 0x%x", got)
	}

	if got := m.ReadU64(frame.Address() + 8); got != 0x1122334455667788 {
		t.Fatal("expected the write to land in the mapped physical frame")
	}
}

func TestVirtAccessFaultsOnUnmappedPage(t *testing.T) {
	var buf bytes.Buffer
	klog.SetOutputSink(&buf)
	defer klog.SetOutputSink(nil)

	m := newTestMachine(t)
	root := m.InitKernelPageTables()

	if _, err := m.ReadVirt(root, 0x00ff000); err != vmm.ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping; got %v", err)
	}
	if !strings.Contains(buf.String(), "[EXC] #PF unguarded") {
		t.Fatalf("expected an unguarded #PF report; got %q", buf.String())
	}
}
