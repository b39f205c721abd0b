// Package vmm implements the virtual memory subsystem of the kernel: page
// table entry encoding, the recursive-mapping page table walk, the mapping
// operations of the active address space and the construction of fresh
// address spaces while another one is in use.
package vmm

import (
	"zephyros/kernel"
	"zephyros/kernel/cpu"
	"zephyros/kernel/kfmt"
	"zephyros/kernel/mm"
	"zephyros/multiboot"
)

var (
	// The following functions are overridden by tests so the package can be
	// exercised on a host OS. When compiling the kernel they are
	// automatically inlined by the compiler.
	activePDTFn        = cpu.ActivePDT
	switchPDTFn        = cpu.SwitchPDT
	flushTLBEntryFn    = cpu.FlushTLBEntry
	flushTLBFn         = cpu.FlushTLB
	visitElfSectionsFn = multiboot.VisitElfSections
	infoRegionFn       = multiboot.InfoRegion

	// ErrSectionNotAligned is returned by RemapKernel when the bootloader
	// reports a loaded kernel section whose start address is not
	// page-aligned. Such a section cannot be mapped with per-page
	// permissions and continuing would leave the kernel partially
	// unprotected.
	ErrSectionNotAligned = &kernel.Error{Module: "vmm", Message: "kernel ELF section is not page-aligned"}
)

// RemapKernel replaces the address space inherited from the bootstrap code
// with a fresh hierarchy that contains only explicit mappings:
//   - every loaded kernel ELF section, identity-mapped with permissions
//     derived from its attributes,
//   - the VGA text buffer, identity-mapped writable,
//   - the frames spanning the multiboot information structure,
//     identity-mapped present-only.
//
// After switching to the new hierarchy the level-4 frame of the old one is
// unmapped, turning its identity page into a guard page so that any stale
// access through the old recursive addresses faults instead of silently
// reading freed memory.
//
// Any error is fatal to the boot sequence: a partially built address space is
// never activated.
func RemapKernel(allocator mm.FrameAllocator) (*ActivePageTable, *kernel.Error) {
	tmp, err := NewTemporaryPage(mm.Page(tempMappingAddr>>mm.PageShift), allocator)
	if err != nil {
		return nil, err
	}

	active := NewActivePageTable()

	newFrame, err := allocator.AllocFrame()
	if err != nil {
		return nil, err
	}

	newTable, err := NewInactivePageTable(newFrame, active, tmp)
	if err != nil {
		return nil, err
	}

	err = active.With(&newTable, tmp, func(mapper *Mapper) *kernel.Error {
		var visitErr *kernel.Error

		visitElfSectionsFn(func(name string, secFlags multiboot.ElfSectionFlag, secAddress uintptr, secSize uint64) {
			// Sections that occupy no memory at runtime need no mapping
			if visitErr != nil || (secFlags&multiboot.ElfSectionAllocated) == 0 {
				return
			}

			if secAddress&(mm.PageSize-1) != 0 {
				visitErr = ErrSectionNotAligned
				return
			}

			kfmt.Printf("vmm: mapping section %s at 0x%x (%d bytes)\n", name, secAddress, secSize)

			flags := flagsForElfSection(secFlags)
			frames := mm.RangeFramesInclusive(
				mm.FrameFromAddress(secAddress),
				mm.FrameFromAddress(secAddress+uintptr(secSize)-1),
			)
			for frame, ok := frames.Next(); ok; frame, ok = frames.Next() {
				if visitErr = mapper.IdentityMap(frame, flags, allocator); visitErr != nil {
					return
				}
			}
		})

		if visitErr != nil {
			return visitErr
		}

		if err := mapper.IdentityMap(mm.FrameFromAddress(vgaTextPhysAddr), FlagRW, allocator); err != nil {
			return err
		}

		infoStart, infoEnd := infoRegionFn()
		frames := mm.RangeFramesInclusive(
			mm.FrameFromAddress(infoStart),
			mm.FrameFromAddress(infoEnd-1),
		)
		for frame, ok := frames.Next(); ok; frame, ok = frames.Next() {
			if err := mapper.IdentityMap(frame, 0, allocator); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	oldTable := active.Switch(newTable)

	guardPage := mm.Page(oldTable.p4Frame)
	if err = active.Unmap(guardPage, allocator); err != nil {
		return nil, err
	}
	kfmt.Printf("vmm: guard page at 0x%x\n", guardPage.Address())

	return active, nil
}
