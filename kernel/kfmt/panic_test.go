package kfmt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"formalos/kernel"
)

func TestPanic(t *testing.T) {
	defer func(origHalt func()) {
		cpuHaltFn = origHalt
		outputSink = nil
	}(cpuHaltFn)

	var halted bool
	cpuHaltFn = func() { halted = true }

	specs := []struct {
		input   interface{}
		expLine string
	}{
		{&kernel.Error{Module: "vmm", Message: "AlreadyMapped"}, "[vmm] unrecoverable error: AlreadyMapped"},
		{"invariant checker requested halt", "[rt] unrecoverable error: invariant checker requested halt"},
		{errors.New("frame source exhausted"), "[rt] unrecoverable error: frame source exhausted"},
		{nil, "*** kernel panic: system halted ***"},
	}

	for specIndex, spec := range specs {
		var buf bytes.Buffer
		SetOutputSink(&buf)
		halted = false

		Panic(spec.input)

		if !halted {
			t.Errorf("[spec %d] expected Panic to halt the cpu", specIndex)
		}

		if got := buf.String(); !strings.Contains(got, spec.expLine) {
			t.Errorf("[spec %d] expected output to contain %q; got %q", specIndex, spec.expLine, got)
		}
	}
}
