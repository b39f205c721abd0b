package vmm

import (
	"zephyros/kernel"
	"zephyros/kernel/mm"
)

// tinyAllocatorSlots is the maximum number of intermediate tables (p3, p2,
// p1) that mapping a single page can require.
const tinyAllocatorSlots = 3

var (
	// ErrTempPageAlreadyMapped is returned when mapping a temporary page
	// that has not been unmapped since its last use.
	ErrTempPageAlreadyMapped = &kernel.Error{Module: "vmm", Message: "temporary page is already mapped"}

	// ErrTinyAllocatorExhausted is returned when the private frame pool of
	// a temporary page runs dry.
	ErrTinyAllocatorExhausted = &kernel.Error{Module: "vmm", Message: "temporary page frame pool is exhausted"}

	// ErrTinyAllocatorFull is returned when a frame is released into a
	// pool that has no empty slot left.
	ErrTinyAllocatorFull = &kernel.Error{Module: "vmm", Message: "temporary page frame pool cannot hold more frames"}
)

// tinyFrameAllocator is a fixed-size pool of physical frames owned
// exclusively by a TemporaryPage. The pool covers the worst case of the
// temporary page's own table walk: one frame for each intermediate table
// level that may need to be created.
type tinyFrameAllocator struct {
	frames [tinyAllocatorSlots]mm.Frame
}

func newTinyFrameAllocator(allocator mm.FrameAllocator) (tinyFrameAllocator, *kernel.Error) {
	var tiny tinyFrameAllocator

	for slot := range tiny.frames {
		frame, err := allocator.AllocFrame()
		if err != nil {
			return tiny, err
		}
		tiny.frames[slot] = frame
	}

	return tiny, nil
}

// AllocFrame hands out the first frame still present in the pool.
func (a *tinyFrameAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	for slot, frame := range a.frames {
		if frame.Valid() {
			a.frames[slot] = mm.InvalidFrame
			return frame, nil
		}
	}

	return mm.InvalidFrame, ErrTinyAllocatorExhausted
}

// FreeFrame stores frame in the first empty pool slot.
func (a *tinyFrameAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	for slot, cur := range a.frames {
		if !cur.Valid() {
			a.frames[slot] = frame
			return nil
		}
	}

	return ErrTinyAllocatorFull
}

// TemporaryPage is a single reusable virtual page through which arbitrary
// physical frames can be made visible in the active address space, e.g. for
// zeroing a freshly allocated table frame. The page draws the frames for its
// own intermediate tables from a private pool so mapping it never competes
// with the allocator that the mapping operations of its users run against.
type TemporaryPage struct {
	page      mm.Page
	allocator tinyFrameAllocator
}

// NewTemporaryPage reserves the supplied virtual page for temporary mappings
// and pre-fills the private frame pool from allocator. The page must be
// chosen so that it can never collide with a real mapping.
func NewTemporaryPage(page mm.Page, allocator mm.FrameAllocator) (*TemporaryPage, *kernel.Error) {
	tiny, err := newTinyFrameAllocator(allocator)
	if err != nil {
		return nil, err
	}

	return &TemporaryPage{page: page, allocator: tiny}, nil
}

// Map makes frame visible at the temporary page's virtual address in the
// active address space and returns that address.
func (t *TemporaryPage) Map(frame mm.Frame, active *ActivePageTable) (uintptr, *kernel.Error) {
	if _, err := active.TranslatePage(t.page); err == nil {
		return 0, ErrTempPageAlreadyMapped
	}

	if err := active.MapTo(t.page, frame, FlagRW, &t.allocator); err != nil {
		return 0, err
	}

	return t.page.Address(), nil
}

// MapTableFrame maps frame like Map but returns a level-1 table view over it,
// suitable for editing the entries of a table frame that is not reachable
// through the recursive mapping. The level-1 tag prevents any attempt to
// descend further through the temporarily mapped table.
func (t *TemporaryPage) MapTableFrame(frame mm.Frame, active *ActivePageTable) (table, *kernel.Error) {
	virtAddr, err := t.Map(frame, active)
	if err != nil {
		return table{}, err
	}

	return table{virtAddr: virtAddr, level: levelOne}, nil
}

// Unmap removes the temporary mapping. The previously mapped frame is
// released into the temporary page's private pool.
func (t *TemporaryPage) Unmap(active *ActivePageTable) *kernel.Error {
	return active.Unmap(t.page, &t.allocator)
}
