// Package multiboot parses the boot information structure that a
// multiboot2-compliant bootloader hands to the kernel: the ELF sections of
// the loaded kernel image, the physical memory map and the extent of the
// information structure itself.
package multiboot

import (
	"reflect"
	"unsafe"
)

// infoData is the physical address of the multiboot information structure.
// The boot code passes it to SetInfoPtr before any other function in this
// package is used.
var infoData uintptr

type tagType uint32

// nolint
const (
	tagSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

// info describes the header at the start of the multiboot information
// structure.
type info struct {
	// totalSize is the size of the whole structure including this header.
	totalSize uint32

	// reserved for future use, always zero.
	reserved uint32
}

// tagHeader precedes the payload of each tag. Tags always start at 8-byte
// aligned addresses; size excludes the alignment padding.
type tagHeader struct {
	tagType tagType
	size    uint32
}

// SetInfoPtr registers the physical address of the multiboot information
// structure. It must be invoked before any other function exported by this
// package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// InfoRegion returns the physical [start, end) extent of the multiboot
// information structure itself. The region must stay mapped for as long as
// the kernel reads boot information out of it.
func InfoRegion() (start, end uintptr) {
	header := (*info)(unsafe.Pointer(infoData))
	return infoData, infoData + uintptr(header.totalSize)
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates a memory region that is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates a memory region that must not be used.
	MemReserved

	// MemAcpiReclaimable indicates a region holding ACPI data that the
	// kernel may reuse once it is done with the tables.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Entry types >= memUnknown are reported as MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes one region of the physical memory map.
type MemoryMapEntry struct {
	// PhysAddress is the physical address where the region begins.
	PhysAddress uint64

	// Length of the region in bytes.
	Length uint64

	// Type of the region.
	Type MemoryEntryType
}

// mmapHeader precedes the list of memory map entries.
type mmapHeader struct {
	entrySize    uint32
	entryVersion uint32
}

// MemRegionVisitor is invoked by VisitMemRegions for each memory region
// reported by the bootloader. Returning false aborts the scan.
type MemRegionVisitor func(*MemoryMapEntry) bool

// VisitMemRegions invokes visitor for each entry of the physical memory map.
// Entries with an unknown type are reported as reserved.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	header := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)

	for curPtr += unsafe.Sizeof(*header); curPtr != endPtr; curPtr += uintptr(header.entrySize) {
		entry := (*MemoryMapEntry)(unsafe.Pointer(curPtr))

		if entry.Type == 0 || entry.Type > memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}
	}
}

// elfSections describes the payload of the ELF symbols tag.
type elfSections struct {
	numSections        uint16
	sectionSize        uint32
	strtabSectionIndex uint32
	sectionData        [0]byte
}

// elfSection64 mirrors the layout of a 64-bit ELF section header.
type elfSection64 struct {
	nameIndex   uint32
	sectionType uint32
	flags       uint64
	address     uint64
	offset      uint64
	size        uint64
	link        uint32
	info        uint32
	addrAlign   uint64
	entSize     uint64
}

// ElfSectionFlag defines an OR-able flag associated with an ELF section.
type ElfSectionFlag uint32

const (
	// ElfSectionWritable marks the section as writable.
	ElfSectionWritable ElfSectionFlag = 1 << iota

	// ElfSectionAllocated marks a section that occupies memory when the
	// image runs (e.g. .bss); sections without this flag need no mapping.
	ElfSectionAllocated

	// ElfSectionExecutable marks the section as containing code.
	ElfSectionExecutable
)

// ElfSectionVisitor is invoked by VisitElfSections for each non-empty ELF
// section of the loaded kernel image.
type ElfSectionVisitor func(name string, flags ElfSectionFlag, address uintptr, size uint64)

// VisitElfSections invokes visitor for each non-empty ELF section of the
// loaded kernel image, passing its name, flags and physical extent.
func VisitElfSections(visitor ElfSectionVisitor) {
	curPtr, size := findTagByType(tagElfSymbols)
	if size == 0 {
		return
	}

	var (
		sections      = (*elfSections)(unsafe.Pointer(curPtr))
		secPtr        = uintptr(unsafe.Pointer(&sections.sectionData))
		sizeofSection = unsafe.Sizeof(elfSection64{})
		strTable      = (*elfSection64)(unsafe.Pointer(secPtr + uintptr(sections.strtabSectionIndex)*sizeofSection))
		secName       string
		secNameHeader = (*reflect.StringHeader)(unsafe.Pointer(&secName))
	)

	for secIndex := uint16(0); secIndex < sections.numSections; secIndex, secPtr = secIndex+1, secPtr+sizeofSection {
		secData := (*elfSection64)(unsafe.Pointer(secPtr))
		if secData.size == 0 {
			continue
		}

		// Section names are C-style NULL-terminated strings inside the
		// string table section; overlay a Go string on top of them.
		end := uintptr(secData.nameIndex)
		for ; *(*byte)(unsafe.Pointer(uintptr(strTable.address) + end)) != 0; end++ {
		}

		secNameHeader.Len = int(end - uintptr(secData.nameIndex))
		secNameHeader.Data = uintptr(strTable.address) + uintptr(secData.nameIndex)

		visitor(secName, ElfSectionFlag(secData.flags), uintptr(secData.address), secData.size)
	}
}

// findTagByType scans the multiboot information structure for the first tag
// of the requested type. It returns the address where the tag's payload
// starts and the payload length; both are zero if the tag is missing.
func findTagByType(tagType tagType) (uintptr, uint32) {
	curPtr := infoData + 8

	for header := (*tagHeader)(unsafe.Pointer(curPtr)); header.tagType != tagSectionEnd; header = (*tagHeader)(unsafe.Pointer(curPtr)) {
		if header.tagType == tagType {
			return curPtr + 8, header.size - 8
		}

		// Tags begin at 8-byte aligned addresses
		curPtr += uintptr(int32(header.size+7) & ^7)
	}

	return 0, 0
}
