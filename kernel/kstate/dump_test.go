package kstate

import (
	"bytes"
	"strings"
	"testing"

	"formalos/kernel/klog"
)

func TestDumpSectionsAndHeaders(t *testing.T) {
	recorded, restorePanics := capturePanics()
	defer restorePanics()

	k, _, restore := newTestKernel(t)
	defer restore()

	for i := 0; i < 12; i++ {
		k.Tick()
	}
	if len(*recorded) != 0 {
		t.Fatalf("expected clean ticks; recorded %v", *recorded)
	}

	var buf bytes.Buffer
	klog.SetOutputSink(&buf)
	defer klog.SetOutputSink(nil)

	k.DumpEvents()
	out := buf.String()

	for _, header := range []string{
		"=== KernelState Event Log Dump ===",
		"=== End of Event Log ===",
		"=== AddressSpace Dump (per task) ===",
		"=== End of AddressSpace Dump ===",
		"=== Endpoint Dump ===",
		"=== End of Endpoint Dump ===",
	} {
		if !strings.Contains(out, "[INFO] "+header) {
			t.Errorf("expected dump to contain header %q", header)
		}
	}

	if !strings.Contains(out, "[INFO] EVENT: TickStarted") {
		t.Error("expected at least one TickStarted event line")
	}
	if !strings.Contains(out, "[INFO]  ENDPOINT:") {
		t.Error("expected an endpoint record")
	}
	if !strings.Contains(out, "[INFO]  Task AddressSpace:") {
		t.Error("expected a per-task address space record")
	}
}

func TestStableHashIsStable(t *testing.T) {
	specs := []struct {
		in uint64
	}{
		{0},
		{1},
		{0xffffffffffffffff},
		{uint64(task2ID)},
	}

	for specIndex, spec := range specs {
		a := stableHash64(spec.in)
		b := stableHash64(spec.in)
		if a != b {
			t.Errorf("[spec %d] expected a stable hash for %d", specIndex, spec.in)
		}
	}

	if stableHash64(1) == stableHash64(2) {
		t.Error("expected distinct hashes for distinct ids")
	}
}
