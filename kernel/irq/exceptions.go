// Package irq reports the CPU exceptions the kernel core cares about. On
// real hardware these reports are produced by the interrupt stubs; the
// simulated machine raises them when an access faults. The marker strings
// are stable: external harnesses grep the serial log for them.
package irq

import "formalos/kernel/klog"

// ExceptionNum identifies an x86_64 exception vector.
type ExceptionNum uint8

const (
	// DoubleFault is raised when an exception occurs while the CPU is
	// already delivering one.
	DoubleFault = ExceptionNum(8)

	// GPFault is raised on privilege or segmentation violations, and by
	// the simulated machine on wild physical accesses.
	GPFault = ExceptionNum(13)

	// PageFault is raised when address translation fails.
	PageFault = ExceptionNum(14)
)

// ReportDoubleFault emits the stable double-fault marker.
func ReportDoubleFault(errCode uint64) {
	klog.Rawf("[EXC] #DF err=%d", errCode)
}

// ReportGeneralProtection emits the stable general-protection marker.
func ReportGeneralProtection(errCode uint64) {
	klog.Rawf("[EXC] #GP err=%d", errCode)
}

// ReportUnguardedPageFault emits the stable marker for a page fault that no
// handler claimed. The faulting virtual address takes the place CR2 holds on
// real hardware.
func ReportUnguardedPageFault(virtAddr uint64) {
	klog.Rawf("[EXC] #PF unguarded cr2=%d", virtAddr)
}
