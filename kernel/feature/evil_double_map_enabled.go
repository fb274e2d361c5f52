//go:build evil_double_map

package feature

// EvilDoubleMap attempts a duplicate Map; the kernel must fail with AlreadyMapped.
const EvilDoubleMap = true
