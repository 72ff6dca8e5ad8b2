// Package device defines the accelerator resource contract used by the
// kernel generators: buffer allocation, kernel argument binding and launch
// geometry. Kernel compilation and queueing stay with the implementation.
package device

import "fmt"

// Buffer is a device-resident allocation.
type Buffer interface {
	// Size returns the allocation size in bytes.
	Size() int64

	// Release frees the allocation. Calling Release twice is a no-op.
	Release()
}

// Allocator creates read/write device buffers.
type Allocator interface {
	Allocate(size int64) (Buffer, error)
}

// Arg is a single kernel argument: either a buffer or a 32-bit unsigned value.
type Arg struct {
	Buffer Buffer
	Value  uint32
}

// BufferArg wraps a buffer as a kernel argument.
func BufferArg(b Buffer) Arg {
	return Arg{Buffer: b}
}

// Uint32Arg wraps a value as a kernel argument.
func Uint32Arg(v uint32) Arg {
	return Arg{Value: v}
}

// IsBuffer reports whether the argument carries a buffer.
func (a Arg) IsBuffer() bool {
	return a.Buffer != nil
}

// String returns a short description used in logs and errors.
func (a Arg) String() string {
	if a.IsBuffer() {
		return fmt.Sprintf("buffer(%d bytes)", a.Buffer.Size())
	}
	return fmt.Sprintf("uint32(%d)", a.Value)
}

// Geometry is a two-dimensional launch configuration.
// Global sizes count work-items, not work-groups.
type Geometry struct {
	Global [2]int
	Local  [2]int
}

// NumGroups returns the number of work-groups along the primary dimension.
func (g Geometry) NumGroups() int {
	if g.Local[0] == 0 {
		return 0
	}
	return g.Global[0] / g.Local[0]
}

// Kernel is a compiled kernel awaiting arguments and geometry.
type Kernel interface {
	SetArg(index int, arg Arg) error
	SetGeometry(g Geometry) error
}
