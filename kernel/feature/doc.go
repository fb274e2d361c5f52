// Package feature exposes the kernel's compile-time switches as boolean
// constants so disabled paths compile away. Each switch is armed by building
// with the matching build tag, e.g.
//
//	go build -tags ipc_trace_paths
//
// Trace switches must not change kernel behavior beyond counter updates;
// demo switches drive scripted scenarios; evil switches inject deliberate
// faults to validate the fail-stop and fail-safe paths.
package feature
