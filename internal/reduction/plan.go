package reduction

import (
	"sync"

	"github.com/born-ml/reducejit/internal/device"
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/render"
	"github.com/born-ml/reducejit/internal/template"
	"github.com/pkg/errors"
)

// NumKernels is the number of kernels of every reduction plan.
const NumKernels = 2

// Plan is a compiled statement batch. It owns the temporaries and is
// reused across launches. A Plan must not be launched concurrently with
// itself: both launches would share the same temporaries.
type Plan struct {
	tpl        *Template
	batch      expr.Batch
	reductions []Reduction
	length     int
	kernels    [NumKernels]*kernel.Kernel
	sources    [NumKernels]string
	alloc      device.Allocator

	mu          sync.Mutex
	temporaries []Temporary
}

// Argument is a kernel parameter together with the value bound to it.
type Argument struct {
	Param kernel.Param
	Arg   device.Arg
}

// Template returns the template the plan was compiled with.
func (p *Plan) Template() *Template { return p.tpl }

// Batch returns the compiled statements.
func (p *Plan) Batch() expr.Batch { return p.batch }

// Reductions returns the reductions in temporary order.
func (p *Plan) Reductions() []Reduction { return p.reductions }

// Length returns the logical length of the reduced vectors.
func (p *Plan) Length() int { return p.length }

// Kernel returns the structured form of kernel kernelID.
func (p *Plan) Kernel(kernelID int) *kernel.Kernel {
	return p.kernels[kernelID]
}

// Source returns the rendered source of kernel kernelID.
func (p *Plan) Source(kernelID int) string {
	return p.sources[kernelID]
}

// Arguments returns the ordered arguments shared by both kernels: the
// handles, the effective element count N / simd_width, then every
// temporary in allocation order.
func (p *Plan) Arguments() ([]Argument, error) {
	if err := p.EnsureBuffers(); err != nil {
		return nil, err
	}

	_, table := render.Map(p.batch)
	args, err := p.tpl.base.HandleArgs(table)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // G115: length is a validated vector size
	args = append(args, device.Uint32Arg(uint32(p.length/p.tpl.cfg.SIMDWidth)))
	for _, t := range p.Temporaries() {
		args = append(args, device.BufferArg(t.Buffer))
	}

	params := p.kernels[0].Params
	if len(params) != len(args) {
		return nil, template.Errorf(template.MalformedExpression, -1, -1,
			"%d params declared, %d arguments bound", len(params), len(args))
	}
	out := make([]Argument, len(args))
	for i := range args {
		out[i] = Argument{Param: params[i], Arg: args[i]}
	}
	return out, nil
}

// Configure prepares kernel kernelID of a launch: it ensures the
// temporaries exist, sets the launch geometry and binds every argument.
func (p *Plan) Configure(kernelID int, k device.Kernel) error {
	if kernelID < 0 || kernelID >= NumKernels {
		return template.Errorf(template.InvalidConfig, -1, -1, "kernel id %d out of range", kernelID)
	}

	args, err := p.Arguments()
	if err != nil {
		return err
	}

	if err := k.SetGeometry(p.Geometry(kernelID)); err != nil {
		return template.Wrap(template.DeviceFailure, -1, -1, errors.Wrapf(err, "kernel %d geometry", kernelID))
	}
	for i, a := range args {
		if err := k.SetArg(i, a.Arg); err != nil {
			return template.Wrap(template.DeviceFailure, -1, -1,
				errors.Wrapf(err, "kernel %d argument %d (%s)", kernelID, i, a.Param.Name))
		}
	}
	return nil
}
