// Package console drives the VGA text-mode framebuffer. The console is the
// primary output device during boot and implements io.Writer so it can be
// registered as the kfmt output sink.
package console

import (
	"reflect"
	"unsafe"
)

const (
	fbPhysAddr uintptr = 0xb8000

	fbWidth  = 80
	fbHeight = 25

	// light grey text on black background
	defaultAttr uint16 = 0x07

	clearChar = uint16(' ')
)

// fbSliceFn returns the framebuffer contents as a []uint16 slice where each
// element packs a character and its attribute byte. It is overridden by tests
// to target a buffer in regular memory instead of the VGA aperture.
var fbSliceFn = func() []uint16 {
	return *(*[]uint16)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  fbWidth * fbHeight,
		Cap:  fbWidth * fbHeight,
		Data: fbPhysAddr,
	}))
}

// VgaText implements a text console on top of the VGA framebuffer at physical
// address 0xb8000. The kernel identity-maps that frame during the early boot
// stages so writes land directly in video memory.
type VgaText struct {
	fb []uint16

	x uint16
	y uint16
}

// NewVgaText returns a cleared console backed by the VGA framebuffer.
func NewVgaText() *VgaText {
	cons := &VgaText{fb: fbSliceFn()}
	cons.Clear()
	return cons
}

// Clear fills the screen with blanks and moves the cursor to the top left
// corner.
func (cons *VgaText) Clear() {
	for i := range cons.fb {
		cons.fb[i] = (defaultAttr << 8) | clearChar
	}
	cons.x, cons.y = 0, 0
}

// Write outputs data to the console, interpreting line feeds and carriage
// returns and scrolling when the cursor moves past the last row. It
// implements io.Writer and never fails.
func (cons *VgaText) Write(data []byte) (int, error) {
	for _, ch := range data {
		cons.writeChar(ch)
	}
	return len(data), nil
}

func (cons *VgaText) writeChar(ch byte) {
	switch ch {
	case '\n':
		cons.newline()
	case '\r':
		cons.x = 0
	default:
		cons.fb[(cons.y*fbWidth)+cons.x] = (defaultAttr << 8) | uint16(ch)
		if cons.x++; cons.x == fbWidth {
			cons.newline()
		}
	}
}

func (cons *VgaText) newline() {
	cons.x = 0
	if cons.y++; cons.y == fbHeight {
		cons.y = fbHeight - 1
		cons.scrollUp()
	}
}

// scrollUp moves all rows one line up and blanks the bottom row.
func (cons *VgaText) scrollUp() {
	copy(cons.fb, cons.fb[fbWidth:])

	for i := (fbHeight - 1) * fbWidth; i < fbHeight*fbWidth; i++ {
		cons.fb[i] = (defaultAttr << 8) | clearChar
	}
}
