//go:build !pf_demo

package feature

// PFDemo triggers a page-fault demo scenario against an unmapped page.
const PFDemo = false
