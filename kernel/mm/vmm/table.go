package vmm

import (
	"unsafe"

	"zephyros/kernel"
	"zephyros/kernel/mm"
)

var (
	// ErrNoNextTable is returned when attempting to descend below a level-1
	// table. Level-1 entries describe mapped data frames, not tables.
	ErrNoNextTable = &kernel.Error{Module: "vmm", Message: "level-1 page table entries do not point to tables"}

	// ErrNoHugePageSupport is returned when a page table walk encounters a
	// huge-page leaf at level 3 or 2. Huge pages are not supported by this
	// kernel; reporting them explicitly avoids silently mistranslating a
	// huge mapping as an absent table.
	ErrNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}

	// ptePtrFn converts a page table entry address into a pointer to the
	// entry. It is overridden by tests so table accesses can be redirected
	// into an emulated physical address space. When compiling the kernel
	// this function is automatically inlined.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}
)

// tableLevel tags a table view with its position in the paging hierarchy.
// Level 4 is the hierarchy root reachable through CR3; levels 3 to 1 are only
// reachable through entries of the level above them.
type tableLevel uint8

const (
	levelOne tableLevel = iota + 1
	levelTwo
	levelThree
	levelFour
)

// table provides access to the 512 entries of a page table through the
// virtual address where the table is currently visible. For tables that are
// part of the active hierarchy that address is the one formed by the
// recursive mapping; for temporarily mapped table frames it is the address of
// the temporary page.
type table struct {
	virtAddr uintptr
	level    tableLevel
}

// entryAt returns a pointer to the table entry with the given index.
func (tab table) entryAt(index uintptr) *pageTableEntry {
	return (*pageTableEntry)(ptePtrFn(tab.virtAddr + (index << mm.PointerShift)))
}

// zero marks every entry in the table as absent. A freshly allocated frame
// must be zeroed before it can be trusted as a page table.
func (tab table) zero() {
	for index := uintptr(0); index < entryCount; index++ {
		*tab.entryAt(index) = 0
	}
}

// nextTableAddr returns the virtual address through which the table pointed
// to by the entry at index can be accessed. The table's own virtual address
// already encodes a walk through the recursive slot; shifting it left by one
// index worth of bits and appending index extends that walk by one level.
// The address stays canonical because the shifted-out top bits and the bits
// that replace them are all ones inside the recursive region.
func (tab table) nextTableAddr(index uintptr) uintptr {
	return (tab.virtAddr << tableIndexBits) | (index << mm.PageShift)
}

// nextTable returns a view of the table that the entry at index points to.
// It returns ErrInvalidMapping if the entry is absent and
// ErrNoHugePageSupport if the entry is a huge-page leaf.
func (tab table) nextTable(index uintptr) (table, *kernel.Error) {
	if tab.level == levelOne {
		return table{}, ErrNoNextTable
	}

	pte := tab.entryAt(index)
	if !pte.HasFlags(FlagPresent) {
		return table{}, ErrInvalidMapping
	}

	if pte.HasFlags(FlagHugePage) {
		return table{}, ErrNoHugePageSupport
	}

	return table{virtAddr: tab.nextTableAddr(index), level: tab.level - 1}, nil
}

// nextTableCreate behaves like nextTable but when the entry at index is
// absent it allocates a frame for the missing table, installs it as
// present and writable and zeroes it before returning its view.
func (tab table) nextTableCreate(index uintptr, allocator mm.FrameAllocator) (table, *kernel.Error) {
	if tab.level == levelOne {
		return table{}, ErrNoNextTable
	}

	pte := tab.entryAt(index)
	if pte.HasFlags(FlagPresent) {
		return tab.nextTable(index)
	}

	frame, err := allocator.AllocFrame()
	if err != nil {
		return table{}, err
	}

	pte.SetEntry(frame, FlagPresent|FlagRW)

	next := table{virtAddr: tab.nextTableAddr(index), level: tab.level - 1}
	next.zero()
	return next, nil
}
