package allocator

import (
	"testing"

	"formalos/kernel/hal/bootinfo"
	"formalos/kernel/mem/pmm"
)

func testBootInfo() *bootinfo.BootInfo {
	return &bootinfo.BootInfo{
		Regions: []bootinfo.Region{
			// [frame 0, frame 2]
			{PhysAddress: 0, Length: 3 * 4096, Type: bootinfo.RegionUsable},
			{PhysAddress: 3 * 4096, Length: 4096, Type: bootinfo.RegionReserved},
			// [frame 8, frame 11]
			{PhysAddress: 8 * 4096, Length: 4 * 4096, Type: bootinfo.RegionUsable},
		},
	}
}

func TestBootMemAllocatorSequence(t *testing.T) {
	var alloc BootMemAllocator
	alloc.Init(testBootInfo(), 9, 10)

	expSequence := []pmm.Frame{0, 1, 2, 8, 11}
	for specIndex, exp := range expSequence {
		got, err := alloc.AllocFrame()
		if err != nil {
			t.Fatalf("[alloc %d] unexpected error: %v", specIndex, err)
		}
		if got != exp {
			t.Fatalf("[alloc %d] expected frame %d; got %d", specIndex, exp, got)
		}
	}

	if _, err := alloc.AllocFrame(); err != errBootAllocOutOfMemory {
		t.Fatalf("expected errBootAllocOutOfMemory; got %v", err)
	}

	if got := alloc.AllocCount(); got != uint64(len(expSequence)) {
		t.Fatalf("expected allocCount %d; got %d", len(expSequence), got)
	}
}

func TestBootMemAllocatorUnalignedRegions(t *testing.T) {
	var alloc BootMemAllocator
	alloc.Init(&bootinfo.BootInfo{
		Regions: []bootinfo.Region{
			// Rounds up to frame 1, rounds down past frame 2
			{PhysAddress: 100, Length: 3 * 4096, Type: bootinfo.RegionUsable},
			// Smaller than a page; must be ignored
			{PhysAddress: 5 * 4096, Length: 1024, Type: bootinfo.RegionUsable},
		},
	}, pmm.InvalidFrame, pmm.InvalidFrame)

	expSequence := []pmm.Frame{1, 2}
	for specIndex, exp := range expSequence {
		got, err := alloc.AllocFrame()
		if err != nil {
			t.Fatalf("[alloc %d] unexpected error: %v", specIndex, err)
		}
		if got != exp {
			t.Fatalf("[alloc %d] expected frame %d; got %d", specIndex, exp, got)
		}
	}

	if _, err := alloc.AllocFrame(); err == nil {
		t.Fatal("expected allocation from exhausted map to fail")
	}
}
