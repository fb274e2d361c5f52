package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"formalos/kernel/klog"
	"formalos/kernel/kstate"
	"formalos/kernel/machine"
	"formalos/kernel/mem"
	"formalos/kernel/mem/pmm/allocator"
	"formalos/kernel/mem/vmm"
)

// CLI is the harness command tree.
type CLI struct {
	Run RunCMD `cmd:"" default:"1" help:"Boot the kernel state machine and run the tick loop."`
}

// RunCMD boots the simulated machine, runs a bounded number of ticks and
// dumps the event trace, address spaces and endpoints.
type RunCMD struct {
	Ticks   uint64 `help:"Number of ticks to run before dumping state." default:"80"`
	MemSize int    `help:"Physical memory size in MiB." default:"8"`
	Serial  string `help:"Write the serial log to this file instead of stdout."`
}

// Run implements the run command.
func (r *RunCMD) Run() error {
	var sink io.Writer = os.Stdout
	if r.Serial != "" {
		f, err := os.Create(r.Serial)
		if err != nil {
			return err
		}
		defer f.Close()
		sink = f
	}
	klog.SetOutputSink(sink)

	m, err := machine.New(mem.Size(r.MemSize) * mem.Mb)
	if err != nil {
		return err
	}
	kernelRoot := m.InitKernelPageTables()

	var frames allocator.BootMemAllocator
	reservedStart, reservedEnd := m.ReservedFrameRange()
	frames.Init(m.BootInfo(), reservedStart, reservedEnd)
	frames.PrintMemoryMap()

	vmm.SetFrameAllocator(frames.AllocFrame)
	vmm.SetTLBFlushHandler(m.FlushTLBEntry)
	vmm.SetCR3Writer(m)

	// The modeled kernel image and stack live in the shared high half, so
	// real CR3 switching is safe to arm.
	vmm.ConfigureCR3SwitchSafety(vmm.KernelSpaceStart+0x100000, vmm.KernelSpaceStart+0x200000)

	ks := kstate.New(kstate.Config{
		Hardware:            m,
		FrameSource:         &frames,
		KernelPageTableRoot: kernelRoot,
	})
	ks.Bootstrap()

	for tick := uint64(0); tick < r.Ticks; tick++ {
		if ks.ShouldHalt() {
			klog.Info("KernelState requested halt; stop ticking")
			break
		}
		ks.Tick()
	}

	ks.DumpEvents()
	return nil
}

func main() {
	c := CLI{}

	ctx := kong.Parse(&c,
		kong.Name("formalos"),
		kong.Description("formalos is a pre-formal-verification microkernel core running on a simulated x86_64 machine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if err := ctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
