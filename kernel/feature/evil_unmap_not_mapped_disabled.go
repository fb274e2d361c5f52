//go:build !evil_unmap_not_mapped

package feature

// EvilUnmapNotMapped attempts an Unmap of an unmapped page; the kernel must fail with NotMapped.
const EvilUnmapNotMapped = false
