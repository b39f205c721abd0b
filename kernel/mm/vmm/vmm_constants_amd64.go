package vmm

const (
	// entryCount is the number of entries in a page table at any level.
	entryCount = uintptr(512)

	// tableIndexBits is the number of virtual address bits consumed by each
	// paging level.
	tableIndexBits = uintptr(9)

	// recursiveIndex is the table slot reserved for the recursive mapping.
	// The last entry of every level-4 table that may become active must
	// point back at the frame holding the table itself.
	recursiveIndex = uintptr(511)

	// ptePhysPageMask extracts the physical frame address encoded in a page
	// table entry. On amd64 the address occupies bits 12-51.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// p4VirtualAddr is the virtual address where the active level-4 table
	// is always visible. All four table indices of this address select the
	// recursive slot so the MMU keeps re-entering the level-4 table while
	// walking it and finally lands on the table page itself.
	p4VirtualAddr = uintptr(0xfffffffffffff000)

	// tempMappingAddr is a reserved virtual page used for temporary
	// mappings of arbitrary physical frames (e.g. when zeroing an inactive
	// level-4 table). Its table indices are 510, 511, 511, 511 which keeps
	// it clear of both real kernel mappings and the recursive region.
	tempMappingAddr = uintptr(0xffffff7ffffff000)

	// vgaTextPhysAddr is the physical address of the VGA text-mode buffer.
	vgaTextPhysAddr = uintptr(0xb8000)
)

const (
	// FlagPresent is set when the mapping is available in memory.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page may be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode code may access this page;
	// when clear the page is reserved for kernel code.
	FlagUserAccessible

	// FlagWriteThroughCaching selects write-through caching for this page
	// instead of write-back.
	FlagWriteThroughCaching

	// FlagDoNotCache disables caching for this page.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when the page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when the page is written to.
	FlagDirty

	// FlagHugePage marks an entry as a 2MiB (level 2) or 1GiB (level 3)
	// leaf instead of a pointer to the next table level.
	FlagHugePage

	// FlagGlobal exempts the page's TLB entry from the implicit flush
	// performed when CR3 is reloaded.
	FlagGlobal

	// FlagNoExecute forbids instruction fetches from this page.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)
