package irq

import (
	"bytes"
	"strings"
	"testing"

	"formalos/kernel/klog"
)

func TestExceptionMarkers(t *testing.T) {
	var buf bytes.Buffer
	klog.SetOutputSink(&buf)
	defer klog.SetOutputSink(nil)

	ReportDoubleFault(0)
	ReportGeneralProtection(3)
	ReportUnguardedPageFault(0x110123)

	got := buf.String()
	for _, marker := range []string{"[EXC] #DF", "[EXC] #GP", "[EXC] #PF unguarded"} {
		if !strings.Contains(got, marker) {
			t.Errorf("expected output to contain %q; got %q", marker, got)
		}
	}

	for _, line := range strings.Split(strings.TrimSpace(got), "\n") {
		if !strings.HasPrefix(line, "[EXC] ") {
			t.Errorf("expected exception reports to be raw [EXC] lines; got %q", line)
		}
	}
}
