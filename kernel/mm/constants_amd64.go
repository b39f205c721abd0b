package mm

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). Table entries
	// are pointer-sized so entry offsets are computed as index << PointerShift.
	PointerShift = uintptr(3)

	// PageShift is equal to log2(PageSize). Shifting an address right by
	// PageShift yields a page (or frame) number; shifting a number left
	// yields the address of the page it describes.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)

	// The amd64 MMU requires virtual addresses to be in canonical form:
	// bits 63-48 must be copies of bit 47. This splits the usable address
	// space into a low half ending at canonicalLowEnd (exclusive) and a
	// high half starting at canonicalHighStart (inclusive); everything in
	// between cannot be used for a translation.
	canonicalLowEnd    = uintptr(0x0000800000000000)
	canonicalHighStart = uintptr(0xffff800000000000)

	// tableIndexBits is the number of virtual address bits that select an
	// entry within a single page table. Each table holds 1 << tableIndexBits
	// entries.
	tableIndexBits = uintptr(9)

	// tableIndexMask masks a page number down to a single table index.
	tableIndexMask = uintptr((1 << tableIndexBits) - 1)
)
