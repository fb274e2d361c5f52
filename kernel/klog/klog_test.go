package klog

import (
	"bytes"
	"testing"
)

func TestRecordFormats(t *testing.T) {
	var buf bytes.Buffer
	SetOutputSink(&buf)
	defer SetOutputSink(nil)

	Info("KernelState::tick()")
	InfoU64("tick_count", 7)
	InfoU64("", 99)
	Infof("ipc_trace kind=%s", "ipc_send")
	Error("no more usable frames")
	Raw("INVARIANT VIOLATION: current_task is not RUNNING")

	exp := "[INFO] KernelState::tick()\n" +
		"[INFO] tick_count = 7\n" +
		"[INFO] 99\n" +
		"[INFO] ipc_trace kind=ipc_send\n" +
		"[ERROR] no more usable frames\n" +
		"INVARIANT VIOLATION: current_task is not RUNNING\n"

	if got := buf.String(); got != exp {
		t.Fatalf("unexpected log output:\n%q\nwant:\n%q", got, exp)
	}
}

func TestRecordWriterTagsEveryLine(t *testing.T) {
	var buf bytes.Buffer
	SetOutputSink(&buf)
	defer SetOutputSink(nil)

	w := &recordWriter{tag: []byte("[INFO] ")}
	w.Write([]byte("mem_region:\n index = 0\n"))
	w.Write([]byte("partial"))
	w.Write([]byte(" line\n"))

	exp := "[INFO] mem_region:\n" +
		"[INFO]  index = 0\n" +
		"[INFO] partial line\n"

	if got := buf.String(); got != exp {
		t.Fatalf("expected every line tagged once:\n%q\nwant:\n%q", got, exp)
	}
}
