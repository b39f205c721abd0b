// Package pmm implements the physical memory manager that the kernel uses
// while it bootstraps itself: a rudimentary allocator that hands out frames
// based on the memory map supplied by the bootloader.
package pmm

import (
	"zephyros/kernel"
	"zephyros/kernel/kfmt"
	"zephyros/kernel/mm"
	"zephyros/multiboot"
)

// freeListSlots bounds the number of released frames the boot allocator can
// track. Frames released beyond that are unreachable until a proper allocator
// takes over.
const freeListSlots = 16

var (
	// The following functions are overridden by tests so the allocator can
	// be fed a synthetic memory map.
	visitMemRegionsFn = multiboot.VisitMemRegions
	infoRegionFn      = multiboot.InfoRegion

	// ErrBootAllocOutOfMemory is returned when no usable physical frame is
	// left in any of the available memory regions.
	ErrBootAllocOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of usable physical memory"}

	// ErrBootAllocFreeListFull is returned when releasing a frame while the
	// free list has no empty slot left.
	ErrBootAllocFreeListFull = &kernel.Error{Module: "pmm", Message: "boot allocator cannot track more released frames"}
)

// BootMemAllocator allocates physical frames for the early boot stages. It
// scans the memory regions reported by the bootloader and returns the next
// free frame, tracking its progress with a counter that contains the last
// allocated frame. Frames overlapping the kernel image or the multiboot
// information structure are never handed out.
//
// Released frames are kept in a small fixed-size list and served before the
// region scan resumes. Once the kernel is fully initialized the allocator is
// expected to hand its bookkeeping over to a proper physical allocator.
type BootMemAllocator struct {
	kernelStart uintptr
	kernelEnd   uintptr

	allocCount     uint64
	lastAllocFrame mm.Frame

	freeList  [freeListSlots]mm.Frame
	freeCount int
}

// NewBootMemAllocator returns a boot allocator that treats the physical
// region [kernelStart, kernelEnd) as reserved for the kernel image.
func NewBootMemAllocator(kernelStart, kernelEnd uintptr) *BootMemAllocator {
	return &BootMemAllocator{kernelStart: kernelStart, kernelEnd: kernelEnd}
}

// AllocFrame reserves and returns the next available free frame.
func (alloc *BootMemAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if alloc.freeCount > 0 {
		alloc.freeCount--
		return alloc.freeList[alloc.freeCount], nil
	}

	var (
		err   = ErrBootAllocOutOfMemory
		frame = mm.InvalidFrame
	)

	visitMemRegionsFn(func(region *multiboot.MemoryMapEntry) bool {
		// Ignore reserved regions and regions smaller than a single page
		if region.Type != multiboot.MemAvailable || region.Length < uint64(mm.PageSize) {
			return true
		}

		// Reported addresses may not be page-aligned; round up to get
		// the start frame and round down to get the end frame
		pageSizeMinus1 := uint64(mm.PageSize - 1)
		regionStartFrame := mm.Frame(((region.PhysAddress + pageSizeMinus1) &^ pageSizeMinus1) >> mm.PageShift)
		regionEndFrame := mm.Frame(((region.PhysAddress+region.Length)&^pageSizeMinus1)>>mm.PageShift) - 1

		// Ignore already exhausted regions
		if alloc.allocCount != 0 && alloc.lastAllocFrame >= regionEndFrame {
			return true
		}

		// The last allocated frame either points to a previous region
		// or inside this one. In the first case (or on the very first
		// allocation) start at the region's first frame; otherwise
		// continue with the next frame.
		candidate := regionStartFrame
		if alloc.allocCount != 0 && alloc.lastAllocFrame >= regionStartFrame {
			candidate = alloc.lastAllocFrame + 1
		}

		if candidate = alloc.skipReserved(candidate); candidate > regionEndFrame {
			return true
		}

		frame = candidate
		err = nil
		return false
	})

	if err != nil {
		return mm.InvalidFrame, err
	}

	alloc.allocCount++
	alloc.lastAllocFrame = frame
	return frame, nil
}

// FreeFrame stores frame in the free list so a subsequent AllocFrame can
// reuse it.
func (alloc *BootMemAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	if alloc.freeCount == len(alloc.freeList) {
		return ErrBootAllocFreeListFull
	}

	alloc.freeList[alloc.freeCount] = frame
	alloc.freeCount++
	return nil
}

// skipReserved advances frame past the kernel image and the multiboot
// information structure.
func (alloc *BootMemAllocator) skipReserved(frame mm.Frame) mm.Frame {
	infoStart, infoEnd := infoRegionFn()

	for {
		switch {
		case alloc.kernelEnd > alloc.kernelStart &&
			frame >= mm.FrameFromAddress(alloc.kernelStart) && frame <= mm.FrameFromAddress(alloc.kernelEnd-1):
			frame = mm.FrameFromAddress(alloc.kernelEnd-1) + 1
		case infoEnd > infoStart &&
			frame >= mm.FrameFromAddress(infoStart) && frame <= mm.FrameFromAddress(infoEnd-1):
			frame = mm.FrameFromAddress(infoEnd-1) + 1
		default:
			return frame
		}
	}
}

// PrintMemoryMap logs the physical memory map reported by the bootloader
// together with the total amount of usable memory.
func (alloc *BootMemAllocator) PrintMemoryMap() {
	kfmt.Printf("pmm: system memory map:\n")

	var totalFree uint64
	visitMemRegionsFn(func(region *multiboot.MemoryMapEntry) bool {
		kfmt.Printf("pmm:   [0x%10x - 0x%10x], size: %10d, type: %s\n",
			region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == multiboot.MemAvailable {
			totalFree += region.Length
		}
		return true
	})

	kfmt.Printf("pmm: free memory: %dKb\n", totalFree/1024)
}
