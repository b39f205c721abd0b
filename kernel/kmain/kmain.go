// Package kmain contains the Go entry point of the kernel.
package kmain

import (
	"zephyros/kernel"
	"zephyros/kernel/console"
	"zephyros/kernel/kfmt"
	"zephyros/kernel/mm/pmm"
	"zephyros/kernel/mm/vmm"
	"zephyros/multiboot"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// Kmain is the only Go symbol that is visible (exported) to the rt0
// initialization code. The rt0 code invokes it after setting up a minimal
// environment for executing Go code, passing the address of the multiboot
// information payload provided by the bootloader as well as the physical
// addresses where the kernel image begins and ends.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the
// CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	kfmt.SetOutputSink(console.NewVgaText())

	allocator := pmm.NewBootMemAllocator(kernelStart, kernelEnd)
	allocator.PrintMemoryMap()

	if _, err := vmm.RemapKernel(allocator); err != nil {
		kfmt.Panic(err)
	}

	kfmt.Panic(errKmainReturned)
}
