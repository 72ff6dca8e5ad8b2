package reduction

import (
	"sync"
	"testing"

	"github.com/born-ml/reducejit/internal/device"
	"github.com/born-ml/reducejit/internal/device/host"
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/template"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_Arguments(t *testing.T) {
	o := newOperands(t, expr.Float32, 16)
	cfg := DefaultConfig()
	cfg.SIMDWidth = 4
	cfg.NumGroups = 8
	p := compileWith(t, cfg, o.dev,
		expr.Assign(o.s, expr.Sum(expr.V(o.x))),
		expr.Assign(o.u, expr.Dot(expr.V(o.x), expr.V(o.y))),
	)

	args, err := p.Arguments()
	require.NoError(t, err)

	var names []string
	for _, a := range args {
		names = append(names, a.Param.Name)
	}
	assert.Equal(t, []string{"scal0", "vec0", "scal1", "vec1", "N", "temp0", "temp1"}, names)

	assert.Equal(t, o.s.Buffer, args[0].Arg.Buffer)
	assert.Equal(t, o.x.Buffer, args[1].Arg.Buffer)
	assert.Equal(t, o.y.Buffer, args[3].Arg.Buffer)

	assert.Equal(t, kernel.ParamValue, args[4].Param.Kind)
	assert.False(t, args[4].Arg.IsBuffer())
	assert.Equal(t, uint32(4), args[4].Arg.Value)

	temps := p.Temporaries()
	require.Len(t, temps, 2)
	assert.Equal(t, temps[0].Buffer, args[5].Arg.Buffer)
	assert.Equal(t, temps[1].Buffer, args[6].Arg.Buffer)
	assert.Equal(t, "float", temps[0].TypeName)
	assert.Equal(t, int64(8*4), temps[0].Buffer.Size())

	// Both kernels declare the same params.
	assert.Equal(t, p.Kernel(0).Params, p.Kernel(1).Params)
}

func TestPlan_Geometry(t *testing.T) {
	o := newOperands(t, expr.Float32, 16)
	cfg := DefaultConfig()
	cfg.LocalSize = 64
	cfg.NumGroups = 8
	p := compileWith(t, cfg, o.dev, expr.Assign(o.s, expr.Sum(expr.V(o.x))))

	assert.Equal(t, device.Geometry{Global: [2]int{512, 1}, Local: [2]int{64, 1}}, p.Geometry(0))
	assert.Equal(t, device.Geometry{Global: [2]int{64, 1}, Local: [2]int{64, 1}}, p.Geometry(1))
	assert.Equal(t, 1, p.Geometry(1).NumGroups())
}

func TestPlan_Configure(t *testing.T) {
	o := newOperands(t, expr.Float32, 16)
	p := compileWith(t, DefaultConfig(), o.dev, expr.Assign(o.s, expr.Sum(expr.V(o.x))))

	for id := 0; id < NumKernels; id++ {
		k := host.NewKernel(p.Kernel(id).Name)
		require.NoError(t, p.Configure(id, k))
		assert.Equal(t, p.Geometry(id), k.Geometry())
		assert.Equal(t, 4, k.NumArgs())

		n, ok := k.Arg(2)
		require.True(t, ok)
		assert.Equal(t, uint32(16), n.Value)
	}

	err := p.Configure(2, host.NewKernel("extra"))
	assert.ErrorIs(t, err, template.ErrInvalidConfig)
}

type failingKernel struct {
	failArg int
}

func (k failingKernel) SetArg(index int, _ device.Arg) error {
	if index == k.failArg {
		return errors.New("argument rejected")
	}
	return nil
}

func (failingKernel) SetGeometry(device.Geometry) error { return nil }

func TestPlan_ConfigureDeviceFailure(t *testing.T) {
	o := newOperands(t, expr.Float32, 16)
	p := compileWith(t, DefaultConfig(), o.dev, expr.Assign(o.s, expr.Sum(expr.V(o.x))))

	err := p.Configure(0, failingKernel{failArg: 3})
	assert.ErrorIs(t, err, template.ErrDeviceFailure)
	assert.Contains(t, err.Error(), "temp0")
}

func TestPlan_EnsureBuffersIdempotent(t *testing.T) {
	o := newOperands(t, expr.Float32, 16)
	p := compileWith(t, DefaultConfig(), o.dev, expr.Assign(o.s, expr.Sum(expr.V(o.x))))
	first := p.Temporaries()
	before, _, _ := o.dev.Stats()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.EnsureBuffers())
		}()
	}
	wg.Wait()

	after, _, _ := o.dev.Stats()
	assert.Equal(t, before, after)
	assert.Equal(t, first, p.Temporaries())
}

func TestPlan_Release(t *testing.T) {
	o := newOperands(t, expr.Float32, 16)
	p := compileWith(t, DefaultConfig(), o.dev, expr.Assign(o.s, expr.Sum(expr.V(o.x))))
	allocated, _, _ := o.dev.Stats()

	p.Release()
	assert.Empty(t, p.Temporaries())
	_, released, _ := o.dev.Stats()
	assert.Equal(t, uint64(1), released)

	require.NoError(t, p.EnsureBuffers())
	again, _, _ := o.dev.Stats()
	assert.Equal(t, allocated+1, again)
}

func TestCompile_AllocationFailureReleasesTemporaries(t *testing.T) {
	o := newOperands(t, expr.Float32, 16)
	cfg := DefaultConfig()
	cfg.NumGroups = 4

	_, _, live := o.dev.Stats()
	o.dev.SetCapacity(live + 4*4)
	_, releasedBefore, _ := o.dev.Stats()

	tpl, err := New(cfg)
	require.NoError(t, err)
	_, err = tpl.Compile(expr.Batch{
		expr.Assign(o.s, expr.Sum(expr.V(o.x))),
		expr.Assign(o.u, expr.Sum(expr.V(o.y))),
	}, o.dev)

	assert.ErrorIs(t, err, template.ErrDeviceFailure)
	assert.ErrorIs(t, err, host.ErrOutOfMemory)
	var e *template.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 1, e.Statement)

	_, released, after := o.dev.Stats()
	assert.Equal(t, releasedBefore+1, released)
	assert.Equal(t, live, after)
}
