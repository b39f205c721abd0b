package vmm

import (
	"zephyros/kernel"
	"zephyros/kernel/mm"
)

var (
	// ErrInvalidMapping is returned when looking up or unmapping a virtual
	// address that is not mapped to a physical page.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrMappingAlreadyExists is returned by MapTo when the target page is
	// already mapped. Silently overwriting a live mapping would leak the
	// frame it points to and leave stale TLB entries around; callers must
	// unmap first.
	ErrMappingAlreadyExists = &kernel.Error{Module: "vmm", Message: "page is already mapped to a frame"}
)

// Mapper implements translation and mapping operations on whichever level-4
// table currently occupies the recursive slot of the active hierarchy. It
// holds no pointer state: the level-4 view is recomputed from the fixed
// recursive virtual address on every operation, so a Mapper observes slot
// retargeting (see ActivePageTable.With) automatically.
type Mapper struct{}

func (m *Mapper) p4() table {
	return table{virtAddr: p4VirtualAddr, level: levelFour}
}

// TranslatePage returns the physical frame that page is mapped to, walking
// the four table levels and stopping with ErrInvalidMapping at the first
// absent entry.
func (m *Mapper) TranslatePage(page mm.Page) (mm.Frame, *kernel.Error) {
	p3, err := m.p4().nextTable(page.P4Index())
	if err != nil {
		return mm.InvalidFrame, err
	}

	p2, err := p3.nextTable(page.P3Index())
	if err != nil {
		return mm.InvalidFrame, err
	}

	p1, err := p2.nextTable(page.P2Index())
	if err != nil {
		return mm.InvalidFrame, err
	}

	pte := p1.entryAt(page.P1Index())
	if !pte.HasFlags(FlagPresent) {
		return mm.InvalidFrame, ErrInvalidMapping
	}

	return pte.Frame(), nil
}

// Translate returns the physical address that virtAddr is mapped to by
// combining the translated frame's base with the in-page offset of virtAddr.
func (m *Mapper) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	page, err := mm.PageFromAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	frame, err := m.TranslatePage(page)
	if err != nil {
		return 0, err
	}

	return frame.Address() + (virtAddr & (mm.PageSize - 1)), nil
}

// MapTo establishes a mapping between page and frame, allocating any missing
// intermediate tables from allocator. The present flag is always set in
// addition to the supplied flags. Mapping a page that is already mapped is a
// caller bug and yields ErrMappingAlreadyExists, even for the same frame.
func (m *Mapper) MapTo(page mm.Page, frame mm.Frame, flags PageTableEntryFlag, allocator mm.FrameAllocator) *kernel.Error {
	p3, err := m.p4().nextTableCreate(page.P4Index(), allocator)
	if err != nil {
		return err
	}

	p2, err := p3.nextTableCreate(page.P3Index(), allocator)
	if err != nil {
		return err
	}

	p1, err := p2.nextTableCreate(page.P2Index(), allocator)
	if err != nil {
		return err
	}

	pte := p1.entryAt(page.P1Index())
	if pte.HasFlags(FlagPresent) {
		return ErrMappingAlreadyExists
	}

	pte.SetEntry(frame, flags|FlagPresent)
	return nil
}

// Map allocates a frame from allocator and maps page to it.
func (m *Mapper) Map(page mm.Page, flags PageTableEntryFlag, allocator mm.FrameAllocator) *kernel.Error {
	frame, err := allocator.AllocFrame()
	if err != nil {
		return err
	}

	return m.MapTo(page, frame, flags, allocator)
}

// IdentityMap maps the page with the same number as frame to frame, making
// the virtual addresses inside the page resolve to the equal physical
// addresses.
func (m *Mapper) IdentityMap(frame mm.Frame, flags PageTableEntryFlag, allocator mm.FrameAllocator) *kernel.Error {
	return m.MapTo(mm.Page(frame), frame, flags, allocator)
}

// Unmap removes the mapping for page, invalidates its TLB entry and returns
// the detached frame to allocator. Unmapping a page that is not mapped is a
// caller bug and yields ErrInvalidMapping.
func (m *Mapper) Unmap(page mm.Page, allocator mm.FrameAllocator) *kernel.Error {
	p3, err := m.p4().nextTable(page.P4Index())
	if err != nil {
		return err
	}

	p2, err := p3.nextTable(page.P3Index())
	if err != nil {
		return err
	}

	p1, err := p2.nextTable(page.P2Index())
	if err != nil {
		return err
	}

	pte := p1.entryAt(page.P1Index())
	if !pte.HasFlags(FlagPresent) {
		return ErrInvalidMapping
	}

	frame := pte.Frame()
	*pte = 0
	flushTLBEntryFn(page.Address())

	// TODO: also release the p1/p2/p3 table frames once their last entry
	// is unmapped.
	return allocator.FreeFrame(frame)
}
