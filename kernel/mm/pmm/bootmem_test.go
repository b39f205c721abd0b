package pmm

import (
	"bytes"
	"strings"
	"testing"

	"zephyros/kernel/kfmt"
	"zephyros/kernel/mm"
	"zephyros/multiboot"
)

func mockMemoryMap(regions []multiboot.MemoryMapEntry, infoStart, infoEnd uintptr) func() {
	origVisit := visitMemRegionsFn
	origInfoRegion := infoRegionFn

	visitMemRegionsFn = func(visitor multiboot.MemRegionVisitor) {
		for i := range regions {
			entry := regions[i]
			if !visitor(&entry) {
				return
			}
		}
	}
	infoRegionFn = func() (uintptr, uintptr) {
		return infoStart, infoEnd
	}

	return func() {
		visitMemRegionsFn = origVisit
		infoRegionFn = origInfoRegion
	}
}

func TestBootMemAllocator(t *testing.T) {
	regions := []multiboot.MemoryMapEntry{
		{PhysAddress: 0x0, Length: 0x9fc00, Type: multiboot.MemAvailable},
		{PhysAddress: 0x9fc00, Length: 0x60400, Type: multiboot.MemReserved},
		{PhysAddress: 0x100000, Length: 0x10000, Type: multiboot.MemAvailable},
	}
	defer mockMemoryMap(regions, 0x9000, 0x9500)()

	// The kernel image occupies the first 3 frames of the second region.
	alloc := NewBootMemAllocator(0x100000, 0x103000)

	// The first region serves frames 0-8, then frame 9 is skipped because
	// it holds the multiboot information structure.
	for want := mm.Frame(0); want < 9; want++ {
		got, err := alloc.AllocFrame()
		if err != nil {
			t.Fatalf("allocation of frame 0x%x returned an error: %v", uintptr(want), err)
		}
		if got != want {
			t.Fatalf("expected frame 0x%x; got 0x%x", uintptr(want), uintptr(got))
		}
	}

	if got, err := alloc.AllocFrame(); err != nil || got != mm.Frame(10) {
		t.Fatalf("expected the multiboot info frame to be skipped and frame 0xa returned; got 0x%x, error %v", uintptr(got), err)
	}

	// Released frames are served before the scan resumes.
	if err := alloc.FreeFrame(mm.Frame(5)); err != nil {
		t.Fatalf("FreeFrame returned an error: %v", err)
	}
	if got, err := alloc.AllocFrame(); err != nil || got != mm.Frame(5) {
		t.Fatalf("expected the released frame 0x5 back; got 0x%x, error %v", uintptr(got), err)
	}
	if got, err := alloc.AllocFrame(); err != nil || got != mm.Frame(11) {
		t.Fatalf("expected the scan to resume at frame 0xb; got 0x%x, error %v", uintptr(got), err)
	}
}

func TestBootMemAllocatorCrossesRegions(t *testing.T) {
	regions := []multiboot.MemoryMapEntry{
		{PhysAddress: 0x0, Length: 0x2000, Type: multiboot.MemAvailable},
		{PhysAddress: 0x2000, Length: 0x800, Type: multiboot.MemReserved},
		// Smaller than a page: can never serve a frame.
		{PhysAddress: 0x3000, Length: 0x800, Type: multiboot.MemAvailable},
		{PhysAddress: 0x100000, Length: 0x2000, Type: multiboot.MemAvailable},
	}
	defer mockMemoryMap(regions, 0, 0)()

	alloc := NewBootMemAllocator(0, 0)

	want := []mm.Frame{0, 1, 0x100, 0x101}
	for _, wantFrame := range want {
		got, err := alloc.AllocFrame()
		if err != nil {
			t.Fatalf("allocation of frame 0x%x returned an error: %v", uintptr(wantFrame), err)
		}
		if got != wantFrame {
			t.Fatalf("expected frame 0x%x; got 0x%x", uintptr(wantFrame), uintptr(got))
		}
	}

	if _, err := alloc.AllocFrame(); err != ErrBootAllocOutOfMemory {
		t.Errorf("expected ErrBootAllocOutOfMemory; got %v", err)
	}
}

func TestBootMemAllocatorKernelSpansRegionEnd(t *testing.T) {
	regions := []multiboot.MemoryMapEntry{
		{PhysAddress: 0x0, Length: 0x3000, Type: multiboot.MemAvailable},
		{PhysAddress: 0x100000, Length: 0x1000, Type: multiboot.MemAvailable},
	}
	defer mockMemoryMap(regions, 0, 0)()

	// The kernel image covers the entire first region.
	alloc := NewBootMemAllocator(0x0, 0x3000)

	if got, err := alloc.AllocFrame(); err != nil || got != mm.Frame(0x100) {
		t.Fatalf("expected frame 0x100 from the second region; got 0x%x, error %v", uintptr(got), err)
	}
}

func TestBootMemAllocatorFreeListFull(t *testing.T) {
	alloc := NewBootMemAllocator(0, 0)

	for i := 0; i < freeListSlots; i++ {
		if err := alloc.FreeFrame(mm.Frame(i)); err != nil {
			t.Fatalf("FreeFrame %d returned an error: %v", i, err)
		}
	}

	if err := alloc.FreeFrame(mm.Frame(0x42)); err != ErrBootAllocFreeListFull {
		t.Errorf("expected ErrBootAllocFreeListFull; got %v", err)
	}
}

func TestPrintMemoryMap(t *testing.T) {
	regions := []multiboot.MemoryMapEntry{
		{PhysAddress: 0x0, Length: 0x9fc00, Type: multiboot.MemAvailable},
		{PhysAddress: 0x9fc00, Length: 0x60400, Type: multiboot.MemReserved},
	}
	defer mockMemoryMap(regions, 0, 0)()

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	NewBootMemAllocator(0, 0).PrintMemoryMap()

	for _, want := range []string{"system memory map", "available", "reserved", "free memory: 639Kb"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected the memory map dump to mention %q; dump:\n%s", want, buf.String())
		}
	}
}
