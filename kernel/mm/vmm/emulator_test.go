package vmm

import (
	"testing"
	"unsafe"

	"zephyros/kernel"
	"zephyros/kernel/mm"
)

var errTestOutOfMemory = &kernel.Error{Module: "test", Message: "out of physical frames"}

// pagingEmulator emulates the machinery that the vmm package drives on real
// hardware: a physical address space holding page table frames, the CR3
// register and the TLB maintenance primitives. Entry pointers requested
// through ptePtrFn are resolved by performing the same four-level walk the
// MMU would perform, so the recursive mapping (including its retargeting
// during ActivePageTable.With) behaves exactly as it does on real hardware.
//
// The emulator also implements mm.FrameAllocator, handing out fresh emulated
// frames and recording freed ones.
type pagingEmulator struct {
	t *testing.T

	frames    map[mm.Frame]*[entryCount]pageTableEntry
	nextFrame mm.Frame
	cr3       uintptr

	freed           []mm.Frame
	flushAllCount   int
	flushEntryCount int
}

// newPagingEmulator sets up an emulated address space whose level-4 table has
// a valid recursive slot, mirroring the state the bootstrap code leaves the
// real machine in.
func newPagingEmulator(t *testing.T) *pagingEmulator {
	e := &pagingEmulator{
		t:         t,
		frames:    make(map[mm.Frame]*[entryCount]pageTableEntry),
		nextFrame: mm.Frame(0x100),
	}

	root, _ := e.AllocFrame()
	e.frames[root][recursiveIndex].SetEntry(root, FlagPresent|FlagRW)
	e.cr3 = root.Address()

	return e
}

// install points the package seams at the emulator and returns a function
// that restores them.
func (e *pagingEmulator) install() func() {
	origPtePtr := ptePtrFn
	origActivePDT := activePDTFn
	origSwitchPDT := switchPDTFn
	origFlushTLBEntry := flushTLBEntryFn
	origFlushTLB := flushTLBFn

	ptePtrFn = e.ptePtr
	activePDTFn = func() uintptr { return e.cr3 }
	switchPDTFn = func(pdtPhysAddr uintptr) {
		e.cr3 = pdtPhysAddr
		e.flushAllCount++
	}
	flushTLBEntryFn = func(uintptr) { e.flushEntryCount++ }
	flushTLBFn = func() { e.flushAllCount++ }

	return func() {
		ptePtrFn = origPtePtr
		activePDTFn = origActivePDT
		switchPDTFn = origSwitchPDT
		flushTLBEntryFn = origFlushTLBEntry
		flushTLBFn = origFlushTLB
	}
}

func (e *pagingEmulator) rootFrame() mm.Frame {
	return mm.FrameFromAddress(e.cr3)
}

// ptePtr resolves an entry address the way the MMU would: four table lookups
// starting at the table referenced by CR3, then an offset into the final
// frame. Walking through an absent entry or an unknown frame indicates a bug
// in the code under test.
func (e *pagingEmulator) ptePtr(entryAddr uintptr) unsafe.Pointer {
	tableFrame := e.rootFrame()

	for _, shift := range []uintptr{39, 30, 21, 12} {
		tbl := e.frames[tableFrame]
		if tbl == nil {
			e.t.Fatalf("emulator: walk for address 0x%x entered unknown frame %d", entryAddr, tableFrame)
		}

		pte := tbl[(entryAddr>>shift)&(entryCount-1)]
		if !pte.HasFlags(FlagPresent) {
			e.t.Fatalf("emulator: walk for address 0x%x hit a non-present entry at level shift %d", entryAddr, shift)
		}

		tableFrame = pte.Frame()
	}

	target := e.frames[tableFrame]
	if target == nil {
		e.t.Fatalf("emulator: address 0x%x resolves to unknown frame %d", entryAddr, tableFrame)
	}

	return unsafe.Pointer(&target[(entryAddr&(mm.PageSize-1))>>mm.PointerShift])
}

// lookupEntry walks the emulated tables rooted at rootFrame and returns the
// level-1 entry for page, without going through the code under test.
func (e *pagingEmulator) lookupEntry(rootFrame mm.Frame, page mm.Page) (pageTableEntry, bool) {
	indices := []uintptr{page.P4Index(), page.P3Index(), page.P2Index()}

	tableFrame := rootFrame
	for _, index := range indices {
		tbl := e.frames[tableFrame]
		if tbl == nil {
			return 0, false
		}

		pte := tbl[index]
		if !pte.HasFlags(FlagPresent) {
			return 0, false
		}

		tableFrame = pte.Frame()
	}

	tbl := e.frames[tableFrame]
	if tbl == nil {
		return 0, false
	}

	return tbl[page.P1Index()], true
}

// AllocFrame implements mm.FrameAllocator.
func (e *pagingEmulator) AllocFrame() (mm.Frame, *kernel.Error) {
	frame := e.nextFrame
	e.nextFrame++
	e.frames[frame] = new([entryCount]pageTableEntry)
	return frame, nil
}

// FreeFrame implements mm.FrameAllocator.
func (e *pagingEmulator) FreeFrame(frame mm.Frame) *kernel.Error {
	e.freed = append(e.freed, frame)
	return nil
}

// exhaustibleAllocator wraps another allocator and fails once the configured
// number of allocations has been served.
type exhaustibleAllocator struct {
	inner     mm.FrameAllocator
	remaining int
}

func (a *exhaustibleAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if a.remaining == 0 {
		return mm.InvalidFrame, errTestOutOfMemory
	}

	a.remaining--
	return a.inner.AllocFrame()
}

func (a *exhaustibleAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	return a.inner.FreeFrame(frame)
}
