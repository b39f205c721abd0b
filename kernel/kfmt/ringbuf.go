package kfmt

import "io"

// earlyBufSize is the capacity of the ring buffer that captures Printf
// output generated before an output sink is registered. It must be a power
// of two.
const earlyBufSize = 2048

// ringBuffer is a fixed-size byte ring. Once full, the oldest bytes are
// overwritten; boot output that scrolled past is not worth crashing over.
type ringBuffer struct {
	data           [earlyBufSize]byte
	readPos, count int
}

// Write appends len(p) bytes to the ring, overwriting the oldest bytes when
// the ring is full. It never fails.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.data[(rb.readPos+rb.count)&(earlyBufSize-1)] = b
		if rb.count < earlyBufSize {
			rb.count++
		} else {
			rb.readPos = (rb.readPos + 1) & (earlyBufSize - 1)
		}
	}

	return len(p), nil
}

// Read copies up to len(p) of the oldest buffered bytes into p, returning
// io.EOF once the ring is drained.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.count == 0 {
		return 0, io.EOF
	}

	n := 0
	for ; n < len(p) && rb.count > 0; n++ {
		p[n] = rb.data[rb.readPos]
		rb.readPos = (rb.readPos + 1) & (earlyBufSize - 1)
		rb.count--
	}

	return n, nil
}
