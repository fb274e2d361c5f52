// Package cpu provides the control surface of the CPU that the kernel core
// depends on. The hosted core runs on a simulated machine, so the operations
// that would be privileged instructions on real hardware are expressed as
// process-level equivalents behind seams that tests can override.
package cpu

import "os"

var (
	// exitFn is mocked by tests.
	exitFn = os.Exit
)

// Halt stops execution of the kernel. On real hardware this parks the CPU in
// a hlt loop; the hosted core terminates the harness process instead so that
// fail-stop conditions stop everything the same way.
func Halt() {
	exitFn(1)
}
