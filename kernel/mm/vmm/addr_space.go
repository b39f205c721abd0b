package vmm

import (
	"zephyros/kernel"
	"zephyros/kernel/mm"
)

// ActivePageTable represents the table hierarchy that the MMU is currently
// translating through. It embeds Mapper so translation and mapping operations
// can be invoked on it directly. Exactly one hierarchy is active per CPU;
// every other hierarchy reachable by the kernel is described by an
// InactivePageTable and can only be edited through With.
type ActivePageTable struct {
	Mapper
}

// NewActivePageTable returns a handle to the active table hierarchy. The
// caller must guarantee that the recursive slot of the level-4 table loaded
// in CR3 points back at the table's own frame; all Mapper operations resolve
// through that slot.
func NewActivePageTable() *ActivePageTable {
	return &ActivePageTable{}
}

// With runs f as if it were editing the mappings of inactive directly while
// the CPU keeps executing through the current hierarchy. The recursive slot
// of the active level-4 table is retargeted at inactive's frame, so every
// Mapper operation performed by f walks and mutates the inactive hierarchy.
//
// Between the slot swap and its restore any access through a recursive
// address observes the inactive table; the swap, f and the restore therefore
// form a critical section with a full TLB flush on each boundary. The
// temporary page is released on every exit path.
func (t *ActivePageTable) With(inactive *InactivePageTable, tmp *TemporaryPage, f func(*Mapper) *kernel.Error) *kernel.Error {
	backup := mm.FrameFromAddress(activePDTFn())

	// Keep the active level-4 frame reachable through the temporary page:
	// once the recursive slot points elsewhere this is the only way to
	// restore it.
	backupTable, err := tmp.MapTableFrame(backup, t)
	if err != nil {
		return err
	}

	t.p4().entryAt(recursiveIndex).SetEntry(inactive.p4Frame, FlagPresent|FlagRW)
	flushTLBFn()

	fErr := f(&t.Mapper)

	backupTable.entryAt(recursiveIndex).SetEntry(backup, FlagPresent|FlagRW)
	flushTLBFn()

	if unmapErr := tmp.Unmap(t); fErr == nil {
		fErr = unmapErr
	}

	return fErr
}

// Switch loads newTable into CR3 and returns a descriptor for the displaced
// hierarchy. The CPU immediately starts translating through newTable and all
// non-global TLB entries of the old hierarchy are dropped by the CR3 write.
// Active status moves to newTable; the returned InactivePageTable is the sole
// owner of the old hierarchy's level-4 frame.
func (t *ActivePageTable) Switch(newTable InactivePageTable) InactivePageTable {
	old := InactivePageTable{p4Frame: mm.FrameFromAddress(activePDTFn())}
	switchPDTFn(newTable.p4Frame.Address())
	return old
}

// InactivePageTable describes a level-4 table that is not loaded in CR3. An
// inactive table is only reachable by temporarily mapping its frame or by
// retargeting the active table's recursive slot at it (see With).
type InactivePageTable struct {
	p4Frame mm.Frame
}

// Frame returns the physical frame holding the table's level-4 page.
func (t InactivePageTable) Frame() mm.Frame {
	return t.p4Frame
}

// NewInactivePageTable turns frame into a valid, empty level-4 table: the
// frame is temporarily mapped into the active address space, zeroed, and its
// recursive slot is pointed back at the frame itself. The resulting table is
// safe to populate through With and to activate through Switch.
func NewInactivePageTable(frame mm.Frame, active *ActivePageTable, tmp *TemporaryPage) (InactivePageTable, *kernel.Error) {
	tbl, err := tmp.MapTableFrame(frame, active)
	if err != nil {
		return InactivePageTable{}, err
	}

	tbl.zero()
	tbl.entryAt(recursiveIndex).SetEntry(frame, FlagPresent|FlagRW)

	if err = tmp.Unmap(active); err != nil {
		return InactivePageTable{}, err
	}

	return InactivePageTable{p4Frame: frame}, nil
}
