package kfmt

import (
	"bytes"
	"io"
	"testing"
)

func TestRingBufferWritesAndReads(t *testing.T) {
	var rb ringBuffer

	if _, err := rb.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected read of an empty ring buffer to return io.EOF; got %v", err)
	}

	payload := []byte("the quick brown fox jumps over the lazy dog")
	if n, err := rb.Write(payload); n != len(payload) || err != nil {
		t.Fatalf("expected write to consume %d bytes with nil error; got %d, %v", len(payload), n, err)
	}

	var buf bytes.Buffer
	io.Copy(&buf, &rb)
	if got := buf.String(); got != string(payload) {
		t.Fatalf("expected to read back %q; got %q", payload, got)
	}

	// Draining the backlog empties the window
	if _, err := rb.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected a drained ring buffer to report io.EOF; got %v", err)
	}
}

func TestRingBufferEvictsOldestOnOverrun(t *testing.T) {
	var rb ringBuffer

	for i := 0; i < ringBufferSize; i++ {
		rb.Write([]byte{'x'})
	}
	rb.Write([]byte("yy"))

	var buf bytes.Buffer
	io.Copy(&buf, &rb)

	got := buf.Bytes()
	if len(got) != ringBufferSize {
		t.Fatalf("expected an overrun window to retain %d bytes; got %d", ringBufferSize, len(got))
	}
	if got[0] != 'x' {
		t.Fatal("expected the surviving prefix to be old output")
	}
	if got[len(got)-2] != 'y' || got[len(got)-1] != 'y' {
		t.Fatal("expected the most recent writes to survive an overrun")
	}
}

func TestRingBufferPartialReads(t *testing.T) {
	var rb ringBuffer
	rb.Write([]byte("abcdef"))

	p := make([]byte, 4)
	if n, err := rb.Read(p); n != 4 || err != nil {
		t.Fatalf("expected a 4-byte read; got %d, %v", n, err)
	}
	if string(p) != "abcd" {
		t.Fatalf("expected the oldest bytes first; got %q", p)
	}

	if n, err := rb.Read(p); n != 2 || err != nil || string(p[:n]) != "ef" {
		t.Fatalf("expected the 2-byte tail; got %d, %v, %q", n, err, p[:n])
	}
}
