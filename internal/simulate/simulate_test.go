package simulate

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/born-ml/reducejit/internal/device/host"
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/parallel"
	"github.com/born-ml/reducejit/internal/reduction"
	"github.com/born-ml/reducejit/internal/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func testConfig(local, groups int) reduction.Config {
	cfg := reduction.DefaultConfig()
	cfg.LocalSize = local
	cfg.NumGroups = groups
	return cfg
}

func compile(t *testing.T, cfg reduction.Config, dev *host.Device, batch ...expr.Statement) *reduction.Plan {
	t.Helper()
	tpl, err := reduction.New(cfg)
	require.NoError(t, err)
	plan, err := tpl.Compile(batch, dev)
	require.NoError(t, err)
	t.Cleanup(plan.Release)
	return plan
}

func run(t *testing.T, plan *reduction.Plan) *Result {
	t.Helper()
	res, err := Run(context.Background(), plan, DefaultOptions())
	require.NoError(t, err)
	return res
}

func value(t *testing.T, s *expr.Scalar) float64 {
	t.Helper()
	buf, ok := s.Buffer.(*host.Buffer)
	require.True(t, ok)
	return buf.Float(0, s.Type)
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i%9) - 3.5
	}
	return out
}

func TestRun_SumMatchesAcrossDecompositions(t *testing.T) {
	const local, groups = 16, 4

	for _, n := range []int{0, 1, local - 1, local, local + 1, groups*local*3 + 7} {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			data := ramp(n)
			want := floats.Sum(data)

			var got []float64
			for _, decomp := range []reduction.Decomposition{reduction.Strided, reduction.Block} {
				dev := host.New()
				x, err := dev.NewVector("x", expr.Float64, data)
				require.NoError(t, err)
				s, err := dev.NewScalar("s", expr.Float64)
				require.NoError(t, err)

				cfg := testConfig(local, groups)
				cfg.Decomposition = decomp
				run(t, compile(t, cfg, dev, expr.Assign(s, expr.Sum(expr.V(x)))))
				got = append(got, value(t, s))
			}

			assert.InDelta(t, want, got[0], 1e-9)
			assert.InDelta(t, got[0], got[1], 1e-9)
		})
	}
}

func TestRun_BlockWithFewerElementsThanGroups(t *testing.T) {
	dev := host.New()
	data := []float64{3, -1, 4}
	x, err := dev.NewVector("x", expr.Float32, data)
	require.NoError(t, err)
	sum, err := dev.NewScalar("sum", expr.Float32)
	require.NoError(t, err)
	hi, err := dev.NewScalar("hi", expr.Float32)
	require.NoError(t, err)

	cfg := testConfig(4, 8)
	cfg.Decomposition = reduction.Block
	res := run(t, compile(t, cfg, dev,
		expr.Assign(sum, expr.Sum(expr.V(x))),
		expr.Assign(hi, expr.Max(expr.V(x))),
	))

	// One element per group; trailing groups keep the neutral element.
	assert.Equal(t, []float64{3, -1, 4, 0, 0, 0, 0, 0}, res.Partials[0])
	assert.Equal(t, []float64{3, -1, 4}, res.Partials[1][:3])
	for _, p := range res.Partials[1][3:] {
		assert.True(t, math.IsInf(p, -1))
	}
	assert.Equal(t, 6.0, value(t, sum))
	assert.Equal(t, 4.0, value(t, hi))
}

func TestRun_DotProduct(t *testing.T) {
	for _, simd := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("simd=%d", simd), func(t *testing.T) {
			dev := host.New()
			a, err := dev.NewVector("a", expr.Float32, []float64{1, 2, 3, 4})
			require.NoError(t, err)
			b, err := dev.NewVector("b", expr.Float32, []float64{4, 3, 2, 1})
			require.NoError(t, err)
			s, err := dev.NewScalar("s", expr.Float32)
			require.NoError(t, err)

			cfg := testConfig(4, 2)
			cfg.SIMDWidth = simd
			run(t, compile(t, cfg, dev, expr.Assign(s, expr.Dot(expr.V(a), expr.V(b)))))

			assert.Equal(t, floats.Dot([]float64{1, 2, 3, 4}, []float64{4, 3, 2, 1}), value(t, s))
			assert.Equal(t, 20.0, value(t, s))
		})
	}
}

func TestRun_MinMax(t *testing.T) {
	data := []float64{5, -2, 9, -2, 100}

	for _, decomp := range []reduction.Decomposition{reduction.Strided, reduction.Block} {
		t.Run(decomp.String(), func(t *testing.T) {
			dev := host.New()
			x, err := dev.NewVector("x", expr.Float64, data)
			require.NoError(t, err)
			lo, err := dev.NewScalar("lo", expr.Float64)
			require.NoError(t, err)
			hi, err := dev.NewScalar("hi", expr.Float64)
			require.NoError(t, err)

			cfg := testConfig(4, 2)
			cfg.Decomposition = decomp
			run(t, compile(t, cfg, dev,
				expr.Assign(lo, expr.Min(expr.V(x))),
				expr.Assign(hi, expr.Max(expr.V(x))),
			))

			assert.Equal(t, floats.Min(data), value(t, lo))
			assert.Equal(t, -2.0, value(t, lo))
			assert.Equal(t, floats.Max(data), value(t, hi))
			assert.Equal(t, 100.0, value(t, hi))
		})
	}
}

func TestRun_Product(t *testing.T) {
	dev := host.New()
	data := []float64{1.5, 2, -1, 4, 0.5, 2}
	x, err := dev.NewVector("x", expr.Float64, data)
	require.NoError(t, err)
	s, err := dev.NewScalar("s", expr.Float64)
	require.NoError(t, err)

	cfg := testConfig(2, 2)
	cfg.SIMDWidth = 2
	run(t, compile(t, cfg, dev, expr.Assign(s, expr.Prod(expr.V(x)))))

	assert.Equal(t, floats.Prod(data), value(t, s))
}

func TestRun_IndependentReductions(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	ys := []float64{-4, 7.5, 0, 2, 1, -3, 6, 0.5}

	setup := func(t *testing.T) (*host.Device, *expr.Vector, *expr.Vector, *expr.Scalar, *expr.Scalar) {
		dev := host.New()
		x, err := dev.NewVector("x", expr.Float32, xs)
		require.NoError(t, err)
		y, err := dev.NewVector("y", expr.Float64, ys)
		require.NoError(t, err)
		sx, err := dev.NewScalar("sx", expr.Float32)
		require.NoError(t, err)
		my, err := dev.NewScalar("my", expr.Float64)
		require.NoError(t, err)
		return dev, x, y, sx, my
	}

	t.Run("sum first", func(t *testing.T) {
		dev, x, y, sx, my := setup(t)
		plan := compile(t, testConfig(4, 2), dev,
			expr.Assign(sx, expr.Sum(expr.V(x))),
			expr.Assign(my, expr.Max(expr.V(y))),
		)
		run(t, plan)

		temps := plan.Temporaries()
		require.Len(t, temps, 2)
		assert.Equal(t, expr.Float32, temps[0].Type)
		assert.Equal(t, int64(2*4), temps[0].Buffer.Size())
		assert.Equal(t, expr.Float64, temps[1].Type)
		assert.Equal(t, int64(2*8), temps[1].Buffer.Size())

		assert.Equal(t, 36.0, value(t, sx))
		assert.Equal(t, 7.5, value(t, my))
	})

	t.Run("max first", func(t *testing.T) {
		dev, x, y, sx, my := setup(t)
		plan := compile(t, testConfig(4, 2), dev,
			expr.Assign(my, expr.Max(expr.V(y))),
			expr.Assign(sx, expr.Sum(expr.V(x))),
		)
		res := run(t, plan)

		temps := plan.Temporaries()
		require.Len(t, temps, 2)
		assert.Equal(t, expr.Float64, temps[0].Type)
		assert.Equal(t, expr.Float32, temps[1].Type)

		assert.Equal(t, []float64{7.5, 36}, res.Values)
		assert.Equal(t, 36.0, value(t, sx))
		assert.Equal(t, 7.5, value(t, my))
	})
}

func TestRun_CompositeStatements(t *testing.T) {
	dev := host.New()
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	w := []float64{2, 2, 2, 2, 1, 1, 1, 1}
	x, err := dev.NewVector("x", expr.Float64, data)
	require.NoError(t, err)
	y, err := dev.NewVector("y", expr.Float64, w)
	require.NoError(t, err)
	mean, err := dev.NewScalar("mean", expr.Float64)
	require.NoError(t, err)
	acc, err := dev.NewScalar("acc", expr.Float64)
	require.NoError(t, err)
	acc.Buffer.(*host.Buffer).SetFloat(0, expr.Float64, 100)

	run(t, compile(t, testConfig(2, 2), dev,
		expr.Assign(mean, expr.Div(expr.Sum(expr.V(x)), expr.Const(8, expr.Float64))),
		expr.AddAssign(acc, expr.Sum(expr.Add(expr.Mul(expr.V(x), expr.V(y)), expr.Const(1, expr.Float64)))),
	))

	assert.Equal(t, 4.5, value(t, mean))
	want := 100 + floats.Dot(data, w) + 8
	assert.Equal(t, want, value(t, acc))
}

func TestRun_ReusesTemporaries(t *testing.T) {
	dev := host.New()
	x, err := dev.NewVector("x", expr.Float32, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	s, err := dev.NewScalar("s", expr.Float32)
	require.NoError(t, err)

	plan := compile(t, testConfig(4, 2), dev, expr.Assign(s, expr.Sum(expr.V(x))))
	before, _, _ := dev.Stats()

	require.NoError(t, plan.EnsureBuffers())
	require.NoError(t, plan.EnsureBuffers())
	run(t, plan)
	run(t, plan)

	after, released, _ := dev.Stats()
	assert.Equal(t, before, after)
	assert.Zero(t, released)
	assert.Equal(t, 10.0, value(t, s))
}

func TestRun_UnsupportedTypeAllocatesNothing(t *testing.T) {
	dev := host.New()
	x, err := dev.NewVector("x", expr.Float32, []float64{1, 2})
	require.NoError(t, err)
	n, err := dev.NewVector("n", expr.Int32, []float64{1, 2})
	require.NoError(t, err)
	s, err := dev.NewScalar("s", expr.Float32)
	require.NoError(t, err)
	before, _, _ := dev.Stats()

	tpl, err := reduction.New(testConfig(4, 2))
	require.NoError(t, err)
	_, err = tpl.Compile(expr.Batch{
		expr.Assign(s, expr.Sum(expr.V(x))),
		expr.Assign(s, expr.Sum(expr.V(n))),
	}, dev)

	require.Error(t, err)
	assert.ErrorIs(t, err, template.ErrUnsupportedType)
	after, _, _ := dev.Stats()
	assert.Equal(t, before, after)
}

func TestRun_WorkSizes(t *testing.T) {
	dev := host.New()
	x, err := dev.NewVector("x", expr.Float32, ramp(1000))
	require.NoError(t, err)
	s, err := dev.NewScalar("s", expr.Float32)
	require.NoError(t, err)

	plan := compile(t, testConfig(64, 8), dev, expr.Assign(s, expr.Sum(expr.V(x))))

	k0, k1 := host.NewKernel("k0"), host.NewKernel("k1")
	require.NoError(t, plan.Configure(0, k0))
	require.NoError(t, plan.Configure(1, k1))
	assert.Equal(t, 512, k0.Geometry().Global[0])
	assert.Equal(t, 64, k1.Geometry().Global[0])
	assert.Equal(t, 64, k0.Geometry().Local[0])

	res := run(t, plan)
	assert.Len(t, res.Partials[0], 8)
	assert.InDelta(t, floats.Sum(ramp(1000)), value(t, s), 1e-3)
}

func TestRun_WGSLPlan(t *testing.T) {
	dev := host.New()
	data := ramp(40)
	x, err := dev.NewVector("x", expr.Float32, data)
	require.NoError(t, err)
	s, err := dev.NewScalar("s", expr.Float32)
	require.NoError(t, err)

	cfg := testConfig(8, 3)
	cfg.Dialect = kernel.WGSL{}
	cfg.SIMDWidth = 4
	cfg.Decomposition = reduction.Block
	run(t, compile(t, cfg, dev, expr.Assign(s, expr.Sum(expr.V(x)))))

	assert.InDelta(t, floats.Sum(data), value(t, s), 1e-4)
}

func TestRun_Sequential(t *testing.T) {
	dev := host.New()
	data := ramp(77)
	x, err := dev.NewVector("x", expr.Float64, data)
	require.NoError(t, err)
	s, err := dev.NewScalar("s", expr.Float64)
	require.NoError(t, err)

	plan := compile(t, testConfig(8, 5), dev, expr.Assign(s, expr.Sum(expr.V(x))))
	_, err = Run(context.Background(), plan, Options{Parallel: parallel.Config{Enabled: false}})
	require.NoError(t, err)
	assert.InDelta(t, floats.Sum(data), value(t, s), 1e-9)
}

func TestRun_CanceledContext(t *testing.T) {
	dev := host.New()
	x, err := dev.NewVector("x", expr.Float64, ramp(16))
	require.NoError(t, err)
	s, err := dev.NewScalar("s", expr.Float64)
	require.NoError(t, err)

	plan := compile(t, testConfig(4, 2), dev, expr.Assign(s, expr.Sum(expr.V(x))))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Run(ctx, plan, Options{Parallel: parallel.Config{Enabled: false}})
	assert.ErrorIs(t, err, context.Canceled)
}
