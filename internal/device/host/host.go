// Package host implements the device contract in host memory. It backs
// tests, the simulator and the command line tool.
package host

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/born-ml/reducejit/internal/device"
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/pkg/errors"
)

// ErrOutOfMemory is returned when an allocation exceeds the capacity.
var ErrOutOfMemory = errors.New("host device: out of memory")

var (
	_ device.Allocator = (*Device)(nil)
	_ device.Kernel    = (*Kernel)(nil)
)

// Buffer is a host-memory allocation.
type Buffer struct {
	dev      *Device
	data     []byte
	released bool
}

// Size implements device.Buffer.
func (b *Buffer) Size() int64 { return int64(len(b.data)) }

// Release implements device.Buffer.
func (b *Buffer) Release() {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()

	if b.released {
		return
	}
	b.released = true
	b.dev.released++
	b.dev.live -= int64(len(b.data))
}

// Released reports whether Release was called.
func (b *Buffer) Released() bool {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	return b.released
}

// Bytes returns the backing memory.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of dt elements the buffer holds.
func (b *Buffer) Len(dt expr.DataType) int { return len(b.data) / dt.Size() }

// Float reads element i as dt.
func (b *Buffer) Float(i int, dt expr.DataType) float64 {
	switch dt {
	case expr.Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b.data[4*i:])))
	case expr.Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b.data[8*i:]))
	case expr.Int32:
		return float64(int32(binary.LittleEndian.Uint32(b.data[4*i:]))) //nolint:gosec // reinterpretation
	case expr.Uint32:
		return float64(binary.LittleEndian.Uint32(b.data[4*i:]))
	default:
		panic("host: unsupported element type " + dt.String())
	}
}

// SetFloat stores v into element i as dt, rounding to dt's precision.
func (b *Buffer) SetFloat(i int, dt expr.DataType, v float64) {
	switch dt {
	case expr.Float32:
		binary.LittleEndian.PutUint32(b.data[4*i:], math.Float32bits(float32(v)))
	case expr.Float64:
		binary.LittleEndian.PutUint64(b.data[8*i:], math.Float64bits(v))
	case expr.Int32:
		binary.LittleEndian.PutUint32(b.data[4*i:], uint32(int32(v))) //nolint:gosec // reinterpretation
	case expr.Uint32:
		binary.LittleEndian.PutUint32(b.data[4*i:], uint32(v))
	default:
		panic("host: unsupported element type " + dt.String())
	}
}

// Floats reads the whole buffer as dt.
func (b *Buffer) Floats(dt expr.DataType) []float64 {
	out := make([]float64, b.Len(dt))
	for i := range out {
		out[i] = b.Float(i, dt)
	}
	return out
}

// Device hands out host buffers and keeps allocation statistics.
type Device struct {
	mu        sync.Mutex
	capacity  int64
	live      int64
	allocated uint64
	released  uint64
}

// New returns a device with unlimited capacity.
func New() *Device {
	return &Device{}
}

// SetCapacity bounds the bytes that may be live at once. Zero means unbounded.
func (d *Device) SetCapacity(bytes int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.capacity = bytes
}

// Allocate implements device.Allocator. Memory is zeroed.
func (d *Device) Allocate(size int64) (device.Buffer, error) {
	return d.allocate(size)
}

func (d *Device) allocate(size int64) (*Buffer, error) {
	if size < 0 {
		return nil, errors.Errorf("host device: negative allocation size %d", size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capacity > 0 && d.live+size > d.capacity {
		return nil, errors.Wrapf(ErrOutOfMemory, "%d bytes requested, %d of %d in use", size, d.live, d.capacity)
	}
	d.allocated++
	d.live += size
	return &Buffer{dev: d, data: make([]byte, size)}, nil
}

// Stats returns allocation counters and the bytes currently live.
func (d *Device) Stats() (allocated, released uint64, live int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated, d.released, d.live
}

// NewVector allocates a vector of dt holding values.
func (d *Device) NewVector(name string, dt expr.DataType, values []float64) (*expr.Vector, error) {
	buf, err := d.allocate(int64(len(values) * dt.Size()))
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		buf.SetFloat(i, dt, v)
	}
	return &expr.Vector{Name: name, Size: len(values), Type: dt, Buffer: buf}, nil
}

// NewScalar allocates a zeroed scalar of dt.
func (d *Device) NewScalar(name string, dt expr.DataType) (*expr.Scalar, error) {
	buf, err := d.allocate(int64(dt.Size()))
	if err != nil {
		return nil, err
	}
	return &expr.Scalar{Name: name, Type: dt, Buffer: buf}, nil
}

// Kernel records the arguments and geometry of one launch.
type Kernel struct {
	Name     string
	args     map[int]device.Arg
	geometry device.Geometry
}

// NewKernel returns an unconfigured kernel.
func NewKernel(name string) *Kernel {
	return &Kernel{Name: name, args: make(map[int]device.Arg)}
}

// SetArg implements device.Kernel.
func (k *Kernel) SetArg(index int, arg device.Arg) error {
	if index < 0 {
		return errors.Errorf("host kernel %s: negative argument index %d", k.Name, index)
	}
	if arg.IsBuffer() {
		if b, ok := arg.Buffer.(*Buffer); ok && b.Released() {
			return errors.Errorf("host kernel %s: argument %d is a released buffer", k.Name, index)
		}
	}
	k.args[index] = arg
	return nil
}

// SetGeometry implements device.Kernel.
func (k *Kernel) SetGeometry(g device.Geometry) error {
	for dim := 0; dim < 2; dim++ {
		if g.Local[dim] < 1 || g.Global[dim] < 1 {
			return errors.Errorf("host kernel %s: empty dimension %d in %+v", k.Name, dim, g)
		}
		if g.Global[dim]%g.Local[dim] != 0 {
			return errors.Errorf("host kernel %s: global size %d is not a multiple of local size %d",
				k.Name, g.Global[dim], g.Local[dim])
		}
	}
	k.geometry = g
	return nil
}

// Arg returns the argument bound at index.
func (k *Kernel) Arg(index int) (device.Arg, bool) {
	a, ok := k.args[index]
	return a, ok
}

// NumArgs returns the number of bound arguments.
func (k *Kernel) NumArgs() int { return len(k.args) }

// Geometry returns the launch geometry.
func (k *Kernel) Geometry() device.Geometry { return k.geometry }
