//go:build !ipc_trace_paths

package feature

// IPCTracePaths emits syscall-boundary and fast/slow path annotations for IPC operations.
const IPCTracePaths = false
