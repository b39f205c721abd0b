package vmm

import (
	"zephyros/kernel/mm"
	"zephyros/multiboot"
)

// PageTableEntryFlag describes a flag that can be applied to a page table
// entry.
type PageTableEntryFlag uintptr

// pageTableEntry describes a single slot in a page table. An entry packs a
// physical frame address (bits 12-51) together with a set of flag bits; all
// other bits must remain zero.
type pageTableEntry uintptr

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) == uintptr(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) != 0
}

// SetFlags sets the input list of flags on the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uintptr(*pte) | uintptr(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uintptr(*pte) &^ uintptr(flags))
}

// Frame returns the physical frame that this entry points to.
func (pte pageTableEntry) Frame() mm.Frame {
	return mm.FrameFromAddress(uintptr(pte) & ptePhysPageMask)
}

// SetFrame updates the entry to point at the given physical frame keeping the
// flag bits intact.
func (pte *pageTableEntry) SetFrame(frame mm.Frame) {
	*pte = (pageTableEntry)((uintptr(*pte) &^ ptePhysPageMask) | frame.Address())
}

// SetEntry overwrites the entry with the given frame and flag combination.
// Any stale bits outside the frame address and flag fields are cleared.
func (pte *pageTableEntry) SetEntry(frame mm.Frame, flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(frame.Address() | uintptr(flags))
}

// flagsForElfSection converts the section attributes reported by the
// bootloader into page table entry flags. Sections are mapped non-executable
// unless they are explicitly flagged as containing code.
func flagsForElfSection(secFlags multiboot.ElfSectionFlag) PageTableEntryFlag {
	var flags PageTableEntryFlag

	if (secFlags & multiboot.ElfSectionAllocated) != 0 {
		flags |= FlagPresent
	}

	if (secFlags & multiboot.ElfSectionWritable) != 0 {
		flags |= FlagRW
	}

	if (secFlags & multiboot.ElfSectionExecutable) == 0 {
		flags |= FlagNoExecute
	}

	return flags
}
