// Package mm provides the basic types for describing physical and virtual
// memory pages together with the allocator interface that the virtual memory
// subsystem consumes when it needs to reserve physical frames.
package mm

import "zephyros/kernel"

// ErrNotCanonical is returned when a virtual address outside the canonical
// low/high halves of the amd64 address space is used to construct a Page.
var ErrNotCanonical = &kernel.Error{Module: "mm", Message: "virtual address is not in canonical form"}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address where this Page begins.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// P4Index returns the index into the level-4 page table (bits 39-47 of the
// virtual address) that is used when translating addresses inside this page.
func (p Page) P4Index() uintptr {
	return (uintptr(p) >> 27) & tableIndexMask
}

// P3Index returns the level-3 table index for this page.
func (p Page) P3Index() uintptr {
	return (uintptr(p) >> 18) & tableIndexMask
}

// P2Index returns the level-2 table index for this page.
func (p Page) P2Index() uintptr {
	return (uintptr(p) >> 9) & tableIndexMask
}

// P1Index returns the level-1 table index for this page.
func (p Page) P1Index() uintptr {
	return uintptr(p) & tableIndexMask
}

// PageFromAddress returns the Page that contains virtAddr. Addresses that are
// not page-aligned are rounded down to the page that contains them. Addresses
// that fall in the non-canonical hole of the amd64 address space can never be
// translated by the MMU; passing one is a bug in the caller and yields
// ErrNotCanonical.
func PageFromAddress(virtAddr uintptr) (Page, *kernel.Error) {
	if virtAddr >= canonicalLowEnd && virtAddr < canonicalHighStart {
		return 0, ErrNotCanonical
	}

	return Page(virtAddr >> PageShift), nil
}

// PageRange implements an iterator over an inclusive range of pages.
type PageRange struct {
	start, end Page
}

// RangeInclusive returns a PageRange that yields all pages between start and
// end inclusive.
func RangeInclusive(start, end Page) *PageRange {
	return &PageRange{start: start, end: end}
}

// Next returns the next page in the range. The second return value is false
// once the range is exhausted.
func (r *PageRange) Next() (Page, bool) {
	if r.start > r.end {
		return 0, false
	}

	page := r.start
	r.start++
	return page, true
}
