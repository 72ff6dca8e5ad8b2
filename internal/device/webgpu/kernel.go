//go:build windows

package webgpu

import (
	"encoding/binary"
	"unsafe"

	"github.com/born-ml/reducejit/internal/device"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
)

var _ device.Kernel = (*Kernel)(nil)

// uniformSize is the 16-byte aligned size of a by-value argument.
const uniformSize = 16

// Kernel is a compiled WGSL compute pipeline. Argument i is bound at
// @group(0) @binding(i).
type Kernel struct {
	dev      *Device
	name     string
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
	args     map[int]device.Arg
	geometry device.Geometry
}

// Compile builds the pipeline of a WGSL source whose entry point is main.
func (d *Device) Compile(name, source string) (k *Kernel, err error) {
	defer func() {
		if r := recover(); r != nil {
			k = nil
			err = errors.Errorf("webgpu: compile %s: %v", name, r)
		}
	}()

	shader := d.device.CreateShaderModuleWGSL(source)
	if shader == nil {
		return nil, errors.Errorf("webgpu: compile %s: no shader module", name)
	}
	pipeline := d.device.CreateComputePipelineSimple(nil, shader, "main")
	if pipeline == nil {
		shader.Release()
		return nil, errors.Errorf("webgpu: compile %s: no pipeline", name)
	}
	return &Kernel{dev: d, name: name, shader: shader, pipeline: pipeline, args: make(map[int]device.Arg)}, nil
}

// SetArg implements device.Kernel.
func (k *Kernel) SetArg(index int, arg device.Arg) error {
	if index < 0 {
		return errors.Errorf("webgpu kernel %s: negative argument index %d", k.name, index)
	}
	if arg.IsBuffer() {
		if _, ok := arg.Buffer.(*Buffer); !ok {
			return errors.Errorf("webgpu kernel %s: argument %d is a %T", k.name, index, arg.Buffer)
		}
	}
	k.args[index] = arg
	return nil
}

// SetGeometry implements device.Kernel.
func (k *Kernel) SetGeometry(g device.Geometry) error {
	if g.Local[0] < 1 || g.Global[0]%g.Local[0] != 0 {
		return errors.Errorf("webgpu kernel %s: global size %d is not a multiple of local size %d",
			k.name, g.Global[0], g.Local[0])
	}
	k.geometry = g
	return nil
}

// Dispatch submits one launch with the bound arguments and geometry.
func (k *Kernel) Dispatch() error {
	entries := make([]wgpu.BindGroupEntry, len(k.args))
	var uniforms []*wgpu.Buffer
	defer func() {
		for _, u := range uniforms {
			u.Release()
		}
	}()

	for i := range entries {
		arg, ok := k.args[i]
		if !ok {
			return errors.Errorf("webgpu kernel %s: argument %d is unbound", k.name, i)
		}
		//nolint:gosec // G115: binding indices are small
		binding := uint32(i)
		if arg.IsBuffer() {
			b := arg.Buffer.(*Buffer)
			entries[i] = wgpu.BufferBindingEntry(binding, b.buf, 0, b.padded)
			continue
		}
		u := k.dev.uniform(arg.Value)
		uniforms = append(uniforms, u)
		entries[i] = wgpu.BufferBindingEntry(binding, u, 0, uniformSize)
	}

	layout := k.pipeline.GetBindGroupLayout(0)
	bindGroup := k.dev.device.CreateBindGroupSimple(layout, entries)
	defer bindGroup.Release()

	encoder := k.dev.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	//nolint:gosec // G115: work-group count is non-negative
	pass.DispatchWorkgroups(uint32(k.geometry.NumGroups()), 1, 1)
	pass.End()
	k.dev.queue.Submit(encoder.Finish(nil))
	return nil
}

// Release frees the pipeline and shader module.
func (k *Kernel) Release() {
	if k.pipeline != nil {
		k.pipeline.Release()
		k.pipeline = nil
	}
	if k.shader != nil {
		k.shader.Release()
		k.shader = nil
	}
}

// uniform creates the 16-byte uniform buffer of a by-value argument.
func (d *Device) uniform(v uint32) *wgpu.Buffer {
	buf := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             uniformSize,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buf.GetMappedRange(0, uniformSize)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), uniformSize)
	clear(mappedSlice)
	binary.LittleEndian.PutUint32(mappedSlice, v)
	buf.Unmap()
	return buf
}
