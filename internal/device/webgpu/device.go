//go:build windows

package webgpu

import (
	"sync"
	"unsafe"

	"github.com/born-ml/reducejit/internal/device"
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
)

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

var (
	_ device.Allocator = (*Device)(nil)
	_ device.Buffer    = (*Buffer)(nil)
)

// Device owns a WebGPU adapter, device and queue.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	mu        sync.Mutex
	allocated uint64
	released  uint64
}

// New opens the default adapter.
// Returns an error if WebGPU is not available or initialization fails.
func New() (dev *Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = errors.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, errors.Wrap(err, "webgpu: request adapter")
	}

	d, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(err, "webgpu: request device")
	}

	queue := d.GetQueue()
	if queue == nil {
		d.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: no queue")
	}

	return &Device{instance: instance, adapter: adapter, device: d, queue: queue}, nil
}

// IsAvailable reports whether a WebGPU adapter can be opened.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Release frees the queue, device, adapter and instance.
func (d *Device) Release() {
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

// Stats returns the number of buffers allocated and released.
func (d *Device) Stats() (allocated, released uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated, d.released
}

// Buffer is a read/write storage buffer.
type Buffer struct {
	dev      *Device
	buf      *wgpu.Buffer
	size     int64
	padded   uint64
	released bool
}

// Size implements device.Buffer.
func (b *Buffer) Size() int64 { return b.size }

// Release implements device.Buffer.
func (b *Buffer) Release() {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()

	if b.released {
		return
	}
	b.released = true
	b.buf.Release()
	b.dev.released++
}

// padded rounds size up to the 4-byte granularity of storage bindings.
func padded(size int64) uint64 {
	//nolint:gosec // G115: size is checked non-negative by callers
	return max((uint64(size)+3)&^3, 4)
}

// Allocate implements device.Allocator. Contents are zeroed.
func (d *Device) Allocate(size int64) (device.Buffer, error) {
	if size < 0 {
		return nil, errors.Errorf("webgpu: negative allocation size %d", size)
	}
	return d.upload(make([]byte, size))
}

// upload creates a storage buffer holding data.
func (d *Device) upload(data []byte) (b *Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = errors.Errorf("webgpu: create buffer: %v", r)
		}
	}()

	size := padded(int64(len(data)))
	buf := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            storageUsage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	if buf == nil {
		return nil, errors.Errorf("webgpu: create %d-byte buffer", size)
	}

	mappedPtr := buf.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buf.Unmap()

	d.mu.Lock()
	d.allocated++
	d.mu.Unlock()
	return &Buffer{dev: d, buf: buf, size: int64(len(data)), padded: size}, nil
}

// NewVector uploads values as a vector of dt (float32 or int32/uint32).
func (d *Device) NewVector(name string, dt expr.DataType, values []float64) (*expr.Vector, error) {
	data, err := encode(dt, values)
	if err != nil {
		return nil, err
	}
	buf, err := d.upload(data)
	if err != nil {
		return nil, err
	}
	return &expr.Vector{Name: name, Size: len(values), Type: dt, Buffer: buf}, nil
}

// NewScalar allocates a zeroed scalar of dt.
func (d *Device) NewScalar(name string, dt expr.DataType) (*expr.Scalar, error) {
	buf, err := d.Allocate(int64(dt.Size()))
	if err != nil {
		return nil, err
	}
	return &expr.Scalar{Name: name, Type: dt, Buffer: buf}, nil
}

// Read copies buf back to host memory through a staging buffer.
func (d *Device) Read(buf device.Buffer) ([]byte, error) {
	b, ok := buf.(*Buffer)
	if !ok {
		return nil, errors.Errorf("webgpu: cannot read foreign buffer %T", buf)
	}

	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  b.padded,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(b.buf, 0, staging, 0, b.padded)
	d.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, b.padded); err != nil {
		return nil, errors.Wrap(err, "webgpu: map staging buffer")
	}
	mappedPtr := staging.GetMappedRange(0, b.padded)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), b.padded)
	out := make([]byte, b.size)
	copy(out, mappedSlice)
	staging.Unmap()

	return out, nil
}

// ReadScalar reads element 0 of s.
func (d *Device) ReadScalar(s *expr.Scalar) (float64, error) {
	data, err := d.Read(s.Buffer)
	if err != nil {
		return 0, err
	}
	return decode(s.Type, data)
}
