// Package template holds the scaffolding shared by kernel templates:
// launch parameters, handle arguments, kernel assembly and the error kinds
// every template reports.
package template

import (
	"fmt"

	"github.com/born-ml/reducejit/internal/device"
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/render"
)

// Params are the launch parameters common to every template.
type Params struct {
	SIMDWidth  int
	LocalSize0 int
	LocalSize1 int
	NumKernels int
}

// Validate checks p against the limits of dialect d.
func (p Params) Validate(d kernel.Dialect) error {
	switch {
	case p.SIMDWidth < 1 || p.SIMDWidth&(p.SIMDWidth-1) != 0:
		return Errorf(InvalidConfig, -1, -1, "simd width %d is not a power of two", p.SIMDWidth)
	case p.SIMDWidth > d.MaxWidth():
		return Errorf(InvalidConfig, -1, -1, "simd width %d exceeds %s limit %d", p.SIMDWidth, d.Name(), d.MaxWidth())
	case p.LocalSize0 < 1 || p.LocalSize1 < 1:
		return Errorf(InvalidConfig, -1, -1, "local sizes must be positive, got %dx%d", p.LocalSize0, p.LocalSize1)
	case d.MaxLocalSize() > 0 && p.LocalSize0*p.LocalSize1 > d.MaxLocalSize():
		return Errorf(InvalidConfig, -1, -1, "work-group size %d exceeds %s limit %d", p.LocalSize0*p.LocalSize1, d.Name(), d.MaxLocalSize())
	case p.NumKernels < 1:
		return Errorf(InvalidConfig, -1, -1, "template must produce at least one kernel")
	}
	return nil
}

// Hooks is implemented by concrete templates.
type Hooks interface {
	// ExtraParams returns the template-specific params that follow the
	// handle params.
	ExtraParams() []kernel.Param

	// Core fills the body (and shared arrays) of kernel kernelID.
	Core(kernelID int, k *kernel.Kernel, batch expr.Batch, mappings []render.Mapping) error
}

// Base implements the template lifecycle around a set of Hooks.
type Base struct {
	Params  Params
	Dialect kernel.Dialect
}

// Renderer returns the expression renderer matching the parameters.
func (b *Base) Renderer() render.Renderer {
	return render.Renderer{Dialect: b.Dialect, SIMD: b.Params.SIMDWidth}
}

// KernelName returns the name of kernel kernelID.
func (b *Base) KernelName(prefix string, kernelID int) string {
	return fmt.Sprintf("%s_%d", prefix, kernelID)
}

// Generate assembles kernel kernelID: handle params, the template's extra
// params, then the template body.
func (b *Base) Generate(h Hooks, prefix string, kernelID int, batch expr.Batch) (*kernel.Kernel, error) {
	if kernelID < 0 || kernelID >= b.Params.NumKernels {
		return nil, Errorf(InvalidConfig, -1, -1, "kernel id %d out of range [0, %d)", kernelID, b.Params.NumKernels)
	}

	mappings, table := render.Map(batch)
	k := &kernel.Kernel{
		Name:      b.KernelName(prefix, kernelID),
		LocalSize: [3]int{b.Params.LocalSize0, b.Params.LocalSize1, 1},
	}
	k.Params = append(b.HandleParams(table), h.ExtraParams()...)

	if err := h.Core(kernelID, k, batch, mappings); err != nil {
		return nil, err
	}
	return k, nil
}

// HandleParams declares one buffer param per handle. Vectors use the SIMD
// element type; scalars are one-element buffers.
func (b *Base) HandleParams(table *render.Table) []kernel.Param {
	var params []kernel.Param
	for _, h := range table.Handles() {
		t := kernel.Scalar(h.Type)
		if h.Kind() == render.KindVector {
			t = kernel.Vec(h.Type, b.Params.SIMDWidth)
		}
		params = append(params, kernel.Param{Name: h.Name, Type: t, Kind: kernel.ParamBuffer})
	}
	return params
}

// HandleArgs returns the device arguments matching HandleParams.
func (b *Base) HandleArgs(table *render.Table) ([]device.Arg, error) {
	var args []device.Arg
	for i, h := range table.Handles() {
		var buf device.Buffer
		if h.Vector != nil {
			buf = h.Vector.Buffer
		} else {
			buf = h.Scalar.Buffer
		}
		if buf == nil {
			return nil, Errorf(MalformedExpression, -1, -1, "handle %d (%s) has no device buffer", i, h.Name)
		}
		args = append(args, device.BufferArg(buf))
	}
	return args, nil
}

// LocalSizes returns the work-group shape of kernel kernelID.
func (b *Base) LocalSizes(_ int) [2]int {
	return [2]int{b.Params.LocalSize0, b.Params.LocalSize1}
}
