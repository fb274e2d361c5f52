package kernel

import "testing"

func TestErrorInterface(t *testing.T) {
	err := &Error{Module: "test", Message: "something went wrong"}

	if got := err.Error(); got != "something went wrong" {
		t.Fatalf("expected the message; got %q", got)
	}

	// Errors compare by identity, not by content
	other := &Error{Module: "test", Message: "something went wrong"}
	if err == other {
		t.Fatal("expected distinct error values not to be identical")
	}
}
