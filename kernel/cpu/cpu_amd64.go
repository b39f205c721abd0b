// Package cpu exports architecture-level primitives for manipulating the MMU
// state of the processor. All functions in this package are implemented in
// assembly.
package cpu

// ActivePDT returns the physical address of the page directory table that the
// CPU is currently using (the contents of the CR3 register).
func ActivePDT() uintptr

// SwitchPDT loads pdtPhysAddr into the CR3 register making it the active page
// directory table. Writing to CR3 causes the CPU to drop all non-global
// entries from the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// FlushTLBEntry invalidates the TLB entry for the page that contains
// virtAddr.
func FlushTLBEntry(virtAddr uintptr)

// FlushTLB invalidates all non-global TLB entries by reloading the CR3
// register with its current value.
func FlushTLB()

// Halt stops instruction execution.
func Halt()
