package kfmt

import (
	"bytes"
	"errors"
	"testing"

	"zephyros/kernel"
	"zephyros/kernel/cpu"
)

func TestPanic(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
		outputSink = nil
	}()

	var (
		buf           bytes.Buffer
		cpuHaltCalled bool
	)

	cpuHaltFn = func() {
		cpuHaltCalled = true
	}
	outputSink = &buf

	t.Run("with *kernel.Error", func(t *testing.T) {
		buf.Reset()
		cpuHaltCalled = false

		Panic(&kernel.Error{Module: "vmm", Message: "out of frames"})

		exp := "\n-----------------------------------\n[vmm] unrecoverable error: out of frames\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected panic output:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuHaltCalled {
			t.Fatal("expected Panic to halt the CPU")
		}
	})

	t.Run("with error", func(t *testing.T) {
		buf.Reset()
		cpuHaltCalled = false

		Panic(errors.New("generic failure"))

		exp := "\n-----------------------------------\n[rt] unrecoverable error: generic failure\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected panic output:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuHaltCalled {
			t.Fatal("expected Panic to halt the CPU")
		}
	})

	t.Run("with string", func(t *testing.T) {
		buf.Reset()
		cpuHaltCalled = false

		Panic("bad table state")

		exp := "\n-----------------------------------\n[rt] unrecoverable error: bad table state\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected panic output:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuHaltCalled {
			t.Fatal("expected Panic to halt the CPU")
		}
	})
}
