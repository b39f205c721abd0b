package kernel

// Error describes an error condition detected by the kernel. Errors must be
// declared as package-level variables pointing to a pre-populated Error value;
// the Go allocator is not available to freestanding kernel code so helpers
// like errors.New cannot be used.
type Error struct {
	// Module is the name of the subsystem where the error was detected.
	Module string

	// Message describes the error.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
