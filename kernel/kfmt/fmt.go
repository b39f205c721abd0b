// Package kfmt provides formatted output primitives that are safe to use
// before the Go runtime is fully bootstrapped: nothing in this package
// allocates memory.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize is the size of the scratch buffer used for formatting numbers.
// It is large enough for a 64-bit value in base 8 plus a sign.
const numBufSize = 24

var (
	badVerb    = []byte("%!(NOVERB)")
	badArgType = []byte("%!(WRONGTYPE)")
	missingArg = []byte("%!(MISSING)")
	extraArg   = []byte("%!(EXTRA)")

	// numBuf is a package-level scratch buffer; a stack-allocated buffer
	// would be flagged as escaping through the io.Writer and trigger an
	// allocation on every call.
	numBuf [numBufSize]byte

	// charBuf carries single characters to emit; raw string slicing would
	// likewise allocate.
	charBuf [1]byte

	// earlyBuf captures output generated before an output sink is
	// registered.
	earlyBuf ringBuffer

	// outputSink is where Printf sends its output. While nil, output
	// accumulates in earlyBuf.
	outputSink io.Writer
)

// SetOutputSink registers w as the target for Printf output and drains any
// output buffered before the sink was available into it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyBuf)
	}
}

// Printf formats its arguments to the registered output sink, buffering the
// output until a sink is registered.
//
// The supported verb subset is %s (string or []byte), %d, %x and %o
// (built-in integer types) and %t (bool). An optional decimal width before
// the verb left-pads the value: with spaces for %s and %d, with zeroes for %x
// and %o. Pointer and reflection based verbs are deliberately absent; they
// would drag in runtime machinery that cannot run this early.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes the formatted output to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		pos      int
	)

	for pos < len(format) {
		if format[pos] != '%' {
			emitChar(w, format[pos])
			pos++
			continue
		}

		// Scan optional width digits after the '%'
		pos++
		width := 0
		for ; pos < len(format) && format[pos] >= '0' && format[pos] <= '9'; pos++ {
			width = width*10 + int(format[pos]-'0')
		}

		if pos == len(format) {
			emit(w, badVerb)
			break
		}

		verb := format[pos]
		pos++

		if verb == '%' {
			emitChar(w, '%')
			continue
		}

		if argIndex >= len(args) {
			emit(w, missingArg)
			continue
		}

		arg := args[argIndex]
		argIndex++

		switch verb {
		case 'd':
			emitInt(w, arg, 10, width)
		case 'x':
			emitInt(w, arg, 16, width)
		case 'o':
			emitInt(w, arg, 8, width)
		case 's':
			emitString(w, arg, width)
		case 't':
			emitBool(w, arg)
		default:
			emit(w, badVerb)
		}
	}

	for ; argIndex < len(args); argIndex++ {
		emit(w, extraArg)
	}
}

// emitBool writes "true" or "false" for a bool argument.
func emitBool(w io.Writer, arg interface{}) {
	v, isBool := arg.(bool)
	switch {
	case !isBool:
		emit(w, badArgType)
	case v:
		emitString(w, "true", 0)
	default:
		emitString(w, "false", 0)
	}
}

// emitString writes a string or []byte argument left-padded with spaces up to
// width.
func emitString(w io.Writer, arg interface{}, width int) {
	switch v := arg.(type) {
	case string:
		for pad := width - len(v); pad > 0; pad-- {
			emitChar(w, ' ')
		}
		// Slicing the string into a []byte for a single Write would
		// allocate; emit its bytes one at a time instead.
		for i := 0; i < len(v); i++ {
			emitChar(w, v[i])
		}
	case []byte:
		for pad := width - len(v); pad > 0; pad-- {
			emitChar(w, ' ')
		}
		emit(w, v)
	default:
		emit(w, badArgType)
	}
}

// emitInt writes an integer argument in the requested base, left-padded up to
// width: with zeroes for base 8 and 16, with spaces for base 10.
func emitInt(w io.Writer, arg interface{}, base uint64, width int) {
	var (
		value    uint64
		negative bool
	)

	switch v := arg.(type) {
	case uint8:
		value = uint64(v)
	case uint16:
		value = uint64(v)
	case uint32:
		value = uint64(v)
	case uint64:
		value = v
	case uint:
		value = uint64(v)
	case uintptr:
		value = uint64(v)
	case int8:
		value, negative = absInt(int64(v))
	case int16:
		value, negative = absInt(int64(v))
	case int32:
		value, negative = absInt(int64(v))
	case int64:
		value, negative = absInt(v)
	case int:
		value, negative = absInt(int64(v))
	default:
		emit(w, badArgType)
		return
	}

	padChar := byte('0')
	if base == 10 {
		padChar = ' '
	}

	// Render digits into numBuf back to front
	end := len(numBuf)
	pos := end
	for {
		pos--
		digit := byte(value % base)
		if digit < 10 {
			numBuf[pos] = '0' + digit
		} else {
			numBuf[pos] = 'a' + digit - 10
		}
		value /= base
		if value == 0 {
			break
		}
	}

	contentLen := end - pos
	if negative {
		contentLen++
	}

	// A zero-padded sign goes before the padding, a space-padded one after
	if negative && padChar == '0' {
		emitChar(w, '-')
		negative = false
	}

	for pad := width - contentLen; pad > 0; pad-- {
		emitChar(w, padChar)
	}

	if negative {
		emitChar(w, '-')
	}

	emit(w, numBuf[pos:end])
}

func absInt(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

// emitChar writes a single byte.
func emitChar(w io.Writer, ch byte) {
	charBuf[0] = ch
	emit(w, charBuf[:])
}

// emit is a proxy that uses the runtime noescape trick to hide p from escape
// analysis. Without it the compiler cannot prove that the unknown io.Writer
// keeps no reference to p and would heap-allocate the buffers backing every
// write, crashing the kernel when Printf runs before the Go allocator is up.
func emit(w io.Writer, p []byte) {
	write(w, noEscape(unsafe.Pointer(&p)))
}

func write(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		w.Write(p)
	} else {
		earlyBuf.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
