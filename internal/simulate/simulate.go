// Package simulate executes compiled reduction plans on the host device.
//
// The simulator binds both kernels of a plan to host kernels exactly like a
// real launch would, then interprets the generated kernel IR for every
// work-group and work-item: the loops, register loads, lane accesses,
// barriers and stores the dialect renders into source. Float32 values are
// rounded on every operation and store so results match device arithmetic.
package simulate

import (
	"context"

	"github.com/born-ml/reducejit/internal/device/host"
	"github.com/born-ml/reducejit/internal/parallel"
	"github.com/born-ml/reducejit/internal/reduction"
	"github.com/pkg/errors"
)

// Options control the simulation.
type Options struct {
	Parallel parallel.Config // Work-group fan-out of stage 0.
}

// DefaultOptions runs stage-0 work-groups on every CPU.
func DefaultOptions() Options {
	return Options{Parallel: parallel.DefaultConfig()}
}

// Result holds the values produced by one simulated launch.
type Result struct {
	Partials [][]float64 // Stage-0 output per reduction, one value per work-group.
	Values   []float64   // Final value per reduction.
}

// Run launches both kernels of p. Every handle and temporary must live on a
// host device.
func Run(ctx context.Context, p *reduction.Plan, opts Options) (*Result, error) {
	var stages [reduction.NumKernels]*executor
	for id := range stages {
		k := p.Kernel(id)
		hk := host.NewKernel(k.Name)
		if err := p.Configure(id, hk); err != nil {
			return nil, err
		}
		x, err := newExecutor(k, hk)
		if err != nil {
			return nil, errors.Wrapf(err, "kernel %s", k.Name)
		}
		stages[id] = x
	}
	if n := stages[1].groups; n != 1 {
		return nil, errors.Errorf("stage 1 launched with %d work-groups", n)
	}

	err := parallel.For(ctx, stages[0].groups, func(g int) error {
		_, err := stages[0].run(g)
		return err
	}, opts.Parallel)
	if err != nil {
		return nil, errors.Wrap(err, "stage 0")
	}

	reds := p.Reductions()
	temps := p.Temporaries()
	res := &Result{Partials: make([][]float64, len(reds)), Values: make([]float64, len(reds))}
	for k, r := range reds {
		buf, ok := temps[k].Buffer.(*host.Buffer)
		if !ok {
			return nil, errors.Errorf("temporary %d is not a host buffer", k)
		}
		res.Partials[k] = buf.Floats(r.Type)[:stages[0].groups]
	}

	g, err := stages[1].run(0)
	if err != nil {
		return nil, errors.Wrap(err, "stage 1")
	}
	// Each reduction owns one shared array, declared in reduction order.
	for k := range reds {
		res.Values[k] = g.shared[stages[1].k.Shared[k].Name].data[0]
	}
	return res, nil
}
