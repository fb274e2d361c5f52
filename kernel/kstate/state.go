package kstate

import (
	"formalos/kernel"
	"formalos/kernel/feature"
	"formalos/kernel/kfmt"
	"formalos/kernel/klog"
	"formalos/kernel/mem/pmm"
	"formalos/kernel/mem/vmm"
)

// Task identities and demo constants. The prototype boots a fixed population:
// the kernel task plus two user tasks.
const (
	kernelTaskIndex = 0

	task0ID = TaskID(1)
	task1ID = TaskID(2)
	task2ID = TaskID(3)

	// demoEP is the endpoint the scripted IPC demo runs on.
	demoEP = EndpointID(0)

	// Demo virtual page indices: the kernel task maps a page of its own;
	// both user tasks map the same low-half page so the dumps
	// show the same VA resolving to different frames per address space.
	demoPageKernel = vmm.Page(0x100)
	demoPageUser   = vmm.Page(0x110)
)

var (
	// panicFn is the fail-stop sink; mocked by tests.
	panicFn = kfmt.Panic

	errFramesExhausted = &kernel.Error{Module: "kstate", Message: "physical frame source exhausted"}
	errQueueFull       = &kernel.Error{Module: "kstate", Message: "task queue capacity exceeded"}
)

// FrameSource supplies 4 KiB physical frames. The boot allocator implements
// it; tests inject deterministic fakes.
type FrameSource interface {
	AllocFrame() (pmm.Frame, *kernel.Error)
}

// Hardware is the machine surface the kernel state machine drives: the
// physical memory view used by the page-table backend plus word-granularity
// virtual access used to verify demo mappings.
type Hardware interface {
	vmm.PhysMemory

	ReadVirt(root pmm.Frame, virtAddr uint64) (uint64, *kernel.Error)
	WriteVirt(root pmm.Frame, virtAddr uint64, val uint64) *kernel.Error
}

// Config carries the injected collaborators of the kernel state machine.
type Config struct {
	Hardware    Hardware
	FrameSource FrameSource

	// KernelPageTableRoot is the PML4 the machine booted with; it backs
	// the kernel task's address space.
	KernelPageTableRoot pmm.Frame
}

// KernelState is the single aggregate owned by the tick loop. Nothing in
// this package mutates it except through methods called from Tick, so a tick
// is an atomic step with respect to the kernel invariants.
type KernelState struct {
	hw     Hardware
	frames FrameSource

	tickCount  uint64
	timeTicks  uint64
	shouldHalt bool
	activity   KernelActivity

	tasks    [maxTasks]Task
	numTasks int

	// currentTask is the index of the Running task, or noTask while the
	// kernel idles.
	currentTask int

	addressSpaces [maxTasks]vmm.AddressSpace

	readyQueue taskQueue
	waitQueue  taskQueue

	endpoints [maxEndpoints]Endpoint

	events eventLog

	// Demo bookkeeping: one demo frame request per task plus the mapped /
	// unmapped toggle of the demo page cycle.
	demoFrameWanted [maxTasks]bool
	demoFrame       [maxTasks]pmm.Frame
	demoMapped      [maxTasks]bool

	// Scripted IPC demo progress (two sends, two replies per cycle).
	demoMsgsDelivered uint8
	demoRepliesSent   uint8
	demoSentBySenderA bool
	demoSentBySenderB bool

	// One-shot feature latches.
	demoSingleSlowDone bool
	evilMemStage       uint8
	evilIPCFired       bool
	pfDemoDone         bool
	deadPartnerKilled  bool
	endpointCloseDone  bool
}

// New assembles the boot-time kernel state: the fixed task population, one
// address space per task (user PML4s cloned from the kernel root), the
// endpoint table and the initial ready queue.
func New(cfg Config) *KernelState {
	k := &KernelState{
		hw:          cfg.Hardware,
		frames:      cfg.FrameSource,
		numTasks:    maxTasks,
		currentTask: kernelTaskIndex,
	}

	ids := [maxTasks]TaskID{task0ID, task1ID, task2ID}
	priorities := [maxTasks]uint8{1, 3, 2}

	for i := 0; i < maxTasks; i++ {
		k.tasks[i] = Task{
			ID:               ids[i],
			State:            TaskReady,
			Priority:         priorities[i],
			QuantumRemaining: QuantumDefault,
			AddressSpaceID:   i,
		}
		k.demoFrameWanted[i] = true
		k.demoFrame[i] = pmm.InvalidFrame
	}
	k.tasks[kernelTaskIndex].State = TaskRunning

	k.addressSpaces[kernelTaskIndex] = vmm.NewAddressSpace(vmm.AddressSpaceKernel)
	k.addressSpaces[kernelTaskIndex].SetRootPageFrame(cfg.KernelPageTableRoot)

	for i := kernelTaskIndex + 1; i < maxTasks; i++ {
		k.addressSpaces[i] = vmm.NewAddressSpace(vmm.AddressSpaceUser)

		userRoot, err := k.frames.AllocFrame()
		if err != nil {
			klog.Error("no more frames for user pml4")
			continue
		}

		vmm.InitUserPML4(k.hw, cfg.KernelPageTableRoot, userRoot)
		k.addressSpaces[i].SetRootPageFrame(userRoot)
	}

	for i := range k.endpoints {
		k.endpoints[i] = newEndpoint(EndpointID(i))
	}

	if feature.EndpointCloseTest {
		k.endpoints[demoEP].owner = task2ID
		k.endpoints[demoEP].hasOwner = true
	}

	for i := 0; i < maxTasks; i++ {
		if k.tasks[i].State == TaskReady {
			k.enqueueReady(i)
		}
	}

	return k
}

// Bootstrap exercises the frame source before the tick loop starts so an
// empty memory map fails loudly instead of three ticks in.
func (k *KernelState) Bootstrap() {
	klog.Info("KernelState::bootstrap()")

	for i := 0; i < 5; i++ {
		if _, err := k.frames.AllocFrame(); err != nil {
			klog.Error("no more frames in bootstrap")
			k.shouldHalt = true
			return
		}

		klog.Info("allocated usable frame (bootstrap)")
		k.pushEvent(Event{Kind: EventFrameAllocated})
	}
}

// ShouldHalt reports whether the state machine requested the tick loop to
// stop.
func (k *KernelState) ShouldHalt() bool {
	return k.shouldHalt
}

// TickCount returns the number of completed ticks.
func (k *KernelState) TickCount() uint64 {
	return k.tickCount
}

// markDead terminates a task. Dead tasks stay in the table, are skipped by
// every delivery path and are never revived. Queue membership is dropped
// eagerly; endpoint queue entries are purged lazily by the IPC paths.
func (k *KernelState) markDead(idx int) {
	if !k.validTaskIndex(idx) || k.tasks[idx].State == TaskDead {
		return
	}

	if k.readyQueue.remove(idx) {
		k.pushEvent(Event{Kind: EventReadyDequeued, Task: k.tasks[idx].ID})
	}
	if k.waitQueue.remove(idx) {
		k.pushEvent(Event{Kind: EventWaitDequeued, Task: k.tasks[idx].ID})
	}

	k.tasks[idx].State = TaskDead
	k.tasks[idx].Reason = BlockedReason{}
	k.tasks[idx].HasPendingSendMsg = false
	k.tasks[idx].PendingSendMsg = 0
	k.pushEvent(Event{Kind: EventTaskStateChanged, Task: k.tasks[idx].ID, State: TaskDead})

	if k.currentTask == idx {
		k.currentTask = noTask
	}
}
