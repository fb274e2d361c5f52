package vmm

import (
	"formalos/kernel"
	"formalos/kernel/klog"
	"formalos/kernel/mem/pmm"
)

var (
	// ErrTranslationMismatch is returned when the post-edit verification
	// walk disagrees with the edit that was just applied. A mismatch means
	// the logical layer and the real tables have diverged, which is a
	// fail-stop condition for the caller.
	ErrTranslationMismatch = &kernel.Error{Module: "vmm", Message: "post-edit translation does not match the applied mapping"}

	// cr3SwitchEnabled gates real CR3 writes. It is armed by
	// ConfigureCR3SwitchSafety only when the kernel runs entirely out of
	// the shared high half, so a root switch can never pull the mappings
	// for the currently executing code or stack.
	cr3SwitchEnabled bool

	// cr3Writer is the control-register surface registered by the machine
	// layer.
	cr3Writer CR3Writer
)

// CR3Writer provides access to the CR3 control register of the machine the
// kernel runs on.
type CR3Writer interface {
	// WriteCR3 loads the supplied PML4 frame into CR3.
	WriteCR3(root pmm.Frame)

	// ReadCR3 returns the PML4 frame currently loaded in CR3.
	ReadCR3() pmm.Frame
}

// SetCR3Writer registers the control-register surface used for real address
// space switches.
func SetCR3Writer(w CR3Writer) {
	cr3Writer = w
}

// ConfigureCR3SwitchSafety arms real CR3 writes if both the kernel code and
// the kernel stack live in the shared high half of the address space. When
// the gate stays disabled, page-table edits against non-current roots are
// still performed and verified by translation, but no CR3 write occurs.
// It returns the resulting gate state.
func ConfigureCR3SwitchSafety(codeAddr, stackAddr uint64) bool {
	cr3SwitchEnabled = codeAddr >= KernelSpaceStart && stackAddr >= KernelSpaceStart

	klog.Info("vmm: configure_cr3_switch_safety")
	klog.InfoU64(" code_addr", codeAddr)
	klog.InfoU64(" stack_addr", stackAddr)
	if cr3SwitchEnabled {
		klog.Info(" CR3 real switch: ENABLED")
	} else {
		klog.Info(" CR3 real switch: DISABLED (kernel not in high half)")
	}

	return cr3SwitchEnabled
}

// CR3SwitchEnabled reports whether real CR3 writes are armed.
func CR3SwitchEnabled() bool {
	return cr3SwitchEnabled
}

// ApplyMemAction mirrors an already validated logical MemAction into the page
// table hierarchy rooted at root and verifies the edit with a translation
// walk: a Map must afterwards translate to the mapped frame and an Unmap must
// afterwards fail to translate.
func ApplyMemAction(pm PhysMemory, root pmm.Frame, action MemAction) *kernel.Error {
	switch action.Kind {
	case MemActionMap:
		if err := Map(pm, root, action.Page, action.Frame, action.Flags); err != nil {
			return err
		}

		physAddr, err := Translate(pm, root, action.Page.Address())
		if err != nil || physAddr != action.Frame.Address() {
			return ErrTranslationMismatch
		}
	case MemActionUnmap:
		if err := Unmap(pm, root, action.Page); err != nil {
			return err
		}

		if _, err := Translate(pm, root, action.Page.Address()); err != ErrInvalidMapping {
			return ErrTranslationMismatch
		}
	}

	return nil
}

// SwitchAddressSpace makes the address space rooted at root the active one.
// The switch only touches CR3 when the safety gate is armed and a CR3 writer
// has been registered; otherwise the call records the intent and returns.
func SwitchAddressSpace(root pmm.Frame) {
	if !root.Valid() {
		klog.Info("switch_address_space: no root_page_frame (None)")
		return
	}

	if !cr3SwitchEnabled || cr3Writer == nil {
		klog.Info("switch_address_space: would switch to root_page_frame")
		klog.InfoU64(" root_page_frame_index", uint64(root))
		return
	}

	if cr3Writer.ReadCR3() == root {
		return
	}

	klog.Info("switch_address_space: switching CR3")
	klog.InfoU64(" root_page_frame_index", uint64(root))
	cr3Writer.WriteCR3(root)
}
