package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintfToRingBuffer(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyPrintBuffer = ringBuffer{}
	}()

	exp := "hello 42 true"

	outputSink = nil
	Printf("%s %d %t", "hello", 42, true)

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if got := buf.String(); got != exp {
		t.Fatalf("expected SetOutputSink to flush %q; got %q", exp, got)
	}
}

func TestPrintfToSink(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	var buf bytes.Buffer
	SetOutputSink(&buf)

	Printf("frame %d mapped at 0x%x\n", 9, 0x100000)

	if exp, got := "frame 9 mapped at 0x100000\n", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}
