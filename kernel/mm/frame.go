package mm

import (
	"math"

	"zephyros/kernel"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by frame allocators when they fail to
	// reserve a frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address where this Frame begins.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the Frame that contains physAddr. Addresses that
// are not page-aligned are rounded down to the frame that contains them.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame(physAddr >> PageShift)
}

// FrameRange implements an iterator over an inclusive range of frames.
type FrameRange struct {
	start, end Frame
}

// RangeFramesInclusive returns a FrameRange that yields all frames between
// start and end inclusive.
func RangeFramesInclusive(start, end Frame) *FrameRange {
	return &FrameRange{start: start, end: end}
}

// Next returns the next frame in the range. The second return value is false
// once the range is exhausted.
func (r *FrameRange) Next() (Frame, bool) {
	if r.start > r.end {
		return 0, false
	}

	frame := r.start
	r.start++
	return frame, true
}

// FrameAllocator is implemented by physical memory allocators. The virtual
// memory subsystem borrows frame identities from an allocator but never owns
// any allocation bookkeeping; an allocator must not hand out a frame that was
// returned to it while that frame is still mapped.
type FrameAllocator interface {
	// AllocFrame reserves a physical frame and returns it.
	AllocFrame() (Frame, *kernel.Error)

	// FreeFrame returns a frame that is no longer mapped to the allocator.
	FreeFrame(Frame) *kernel.Error
}
