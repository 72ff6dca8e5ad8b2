package host

import (
	"testing"

	"github.com/born-ml/reducejit/internal/device"
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_AllocateAndRelease(t *testing.T) {
	d := New()

	buf, err := d.Allocate(64)
	require.NoError(t, err)
	assert.Equal(t, int64(64), buf.Size())

	allocated, released, live := d.Stats()
	assert.Equal(t, uint64(1), allocated)
	assert.Zero(t, released)
	assert.Equal(t, int64(64), live)

	buf.Release()
	buf.Release()
	allocated, released, live = d.Stats()
	assert.Equal(t, uint64(1), allocated)
	assert.Equal(t, uint64(1), released)
	assert.Zero(t, live)
}

func TestDevice_Capacity(t *testing.T) {
	d := New()
	d.SetCapacity(100)

	_, err := d.Allocate(60)
	require.NoError(t, err)
	_, err = d.Allocate(60)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	_, err = d.Allocate(-1)
	assert.Error(t, err)
}

func TestBuffer_Float(t *testing.T) {
	d := New()

	tests := []struct {
		dt   expr.DataType
		in   float64
		want float64
	}{
		{expr.Float32, 1.5, 1.5},
		{expr.Float32, 0.1, float64(float32(0.1))},
		{expr.Float64, 0.1, 0.1},
		{expr.Int32, -7, -7},
		{expr.Uint32, 7, 7},
	}
	for _, tt := range tests {
		t.Run(tt.dt.String(), func(t *testing.T) {
			raw, err := d.Allocate(int64(3 * tt.dt.Size()))
			require.NoError(t, err)
			buf := raw.(*Buffer)

			buf.SetFloat(2, tt.dt, tt.in)
			assert.Equal(t, tt.want, buf.Float(2, tt.dt))
			assert.Equal(t, []float64{0, 0, tt.want}, buf.Floats(tt.dt))
		})
	}
}

func TestDevice_NewVectorAndScalar(t *testing.T) {
	d := New()

	v, err := d.NewVector("x", expr.Float32, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, v.Size)
	assert.Equal(t, int64(12), v.Buffer.Size())
	assert.Equal(t, []float64{1, 2, 3}, v.Buffer.(*Buffer).Floats(expr.Float32))

	s, err := d.NewScalar("s", expr.Float64)
	require.NoError(t, err)
	assert.Equal(t, int64(8), s.Buffer.Size())
}

func TestKernel_SetArg(t *testing.T) {
	d := New()
	k := NewKernel("k")

	buf, err := d.Allocate(4)
	require.NoError(t, err)

	require.NoError(t, k.SetArg(0, device.BufferArg(buf)))
	require.NoError(t, k.SetArg(1, device.Uint32Arg(9)))
	assert.Equal(t, 2, k.NumArgs())

	a, ok := k.Arg(1)
	require.True(t, ok)
	assert.Equal(t, uint32(9), a.Value)

	assert.Error(t, k.SetArg(-1, device.Uint32Arg(0)))

	buf.Release()
	assert.Error(t, k.SetArg(2, device.BufferArg(buf)))
}

func TestKernel_SetGeometry(t *testing.T) {
	k := NewKernel("k")

	require.NoError(t, k.SetGeometry(device.Geometry{Global: [2]int{512, 1}, Local: [2]int{64, 1}}))
	assert.Equal(t, 8, k.Geometry().NumGroups())

	assert.Error(t, k.SetGeometry(device.Geometry{Global: [2]int{100, 1}, Local: [2]int{64, 1}}))
	assert.Error(t, k.SetGeometry(device.Geometry{Global: [2]int{64, 0}, Local: [2]int{64, 1}}))
}
