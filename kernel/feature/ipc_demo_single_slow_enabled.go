//go:build ipc_demo_single_slow

package feature

// IPCDemoSingleSlow forces exactly one slow-path send early in boot, then goes quiet.
const IPCDemoSingleSlow = true
