package template

import (
	"testing"

	"github.com/born-ml/reducejit/internal/device"
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/render"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Is(t *testing.T) {
	cause := errors.New("out of memory")
	err := Wrap(DeviceFailure, 1, 3, cause)

	assert.ErrorIs(t, err, ErrDeviceFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrUnsupportedType)
	assert.Equal(t, "device failure (statement 1, node 3): out of memory", err.Error())

	kind, ok := KindOf(errors.Wrap(err, "launch"))
	require.True(t, ok)
	assert.Equal(t, DeviceFailure, kind)

	_, ok = KindOf(cause)
	assert.False(t, ok)
	assert.NoError(t, Wrap(InvalidConfig, 0, 0, nil))
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{Errorf(UnsupportedType, 0, -1, "int32"), "unsupported scalar type (statement 0): int32"},
		{Errorf(MalformedExpression, -1, 4, "bad"), "malformed expression (node 4): bad"},
		{Errorf(InvalidConfig, -1, -1, "simd"), "invalid template configuration: simd"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
	assert.Equal(t, "MalformedExpression", MalformedExpression.String())
}

func TestParams_Validate(t *testing.T) {
	ok := Params{SIMDWidth: 4, LocalSize0: 128, LocalSize1: 1, NumKernels: 2}
	require.NoError(t, ok.Validate(kernel.OpenCL{}))

	tests := []struct {
		name    string
		p       Params
		dialect kernel.Dialect
	}{
		{"simd not power of two", Params{SIMDWidth: 3, LocalSize0: 64, LocalSize1: 1, NumKernels: 1}, kernel.OpenCL{}},
		{"simd too wide", Params{SIMDWidth: 8, LocalSize0: 64, LocalSize1: 1, NumKernels: 1}, kernel.WGSL{}},
		{"zero local size", Params{SIMDWidth: 1, LocalSize0: 0, LocalSize1: 1, NumKernels: 1}, kernel.OpenCL{}},
		{"group too large", Params{SIMDWidth: 1, LocalSize0: 512, LocalSize1: 1, NumKernels: 1}, kernel.WGSL{}},
		{"no kernels", Params{SIMDWidth: 1, LocalSize0: 64, LocalSize1: 1}, kernel.OpenCL{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate(tt.dialect)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

type stubHooks struct {
	calls []int
}

func (h *stubHooks) ExtraParams() []kernel.Param {
	return []kernel.Param{{Name: "N", Type: kernel.Index, Kind: kernel.ParamValue}}
}

func (h *stubHooks) Core(kernelID int, k *kernel.Kernel, _ expr.Batch, mappings []render.Mapping) error {
	h.calls = append(h.calls, kernelID)
	k.Body.Let(kernel.Index, "lid", "0")
	if len(mappings) == 0 {
		return errors.New("no mappings")
	}
	return nil
}

type stubBuffer struct{ size int64 }

func (b stubBuffer) Size() int64 { return b.size }
func (stubBuffer) Release()      {}

func TestBase_Generate(t *testing.T) {
	x := &expr.Vector{Name: "x", Size: 8, Type: expr.Float32, Buffer: stubBuffer{32}}
	s := &expr.Scalar{Name: "s", Type: expr.Float32}
	batch := expr.Batch{expr.Assign(s, expr.Sum(expr.V(x)))}

	b := &Base{Params: Params{SIMDWidth: 2, LocalSize0: 32, LocalSize1: 1, NumKernels: 2}, Dialect: kernel.OpenCL{}}
	h := &stubHooks{}

	k, err := b.Generate(h, "demo", 1, batch)
	require.NoError(t, err)
	assert.Equal(t, "demo_1", k.Name)
	assert.Equal(t, [3]int{32, 1, 1}, k.LocalSize)
	assert.Equal(t, []int{1}, h.calls)
	assert.Equal(t, []kernel.Param{
		{Name: "scal0", Type: kernel.Scalar(expr.Float32), Kind: kernel.ParamBuffer},
		{Name: "vec0", Type: kernel.Vec(expr.Float32, 2), Kind: kernel.ParamBuffer},
		{Name: "N", Type: kernel.Index, Kind: kernel.ParamValue},
	}, k.Params)
	assert.Len(t, k.Body.Stmts, 1)

	_, err = b.Generate(h, "demo", 2, batch)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, [2]int{32, 1}, b.LocalSizes(0))

	_, table := render.Map(batch)
	_, err = b.HandleArgs(table)
	assert.ErrorIs(t, err, ErrMalformedExpression, "scalar has no buffer")

	s.Buffer = stubBuffer{4}
	args, err := b.HandleArgs(table)
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, device.BufferArg(stubBuffer{4}), args[0])
	assert.Equal(t, int64(32), args[1].Buffer.Size())
}
