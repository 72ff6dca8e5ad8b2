//go:build windows

package webgpu

import (
	"encoding/binary"
	"math"

	"github.com/born-ml/reducejit/internal/expr"
	"github.com/pkg/errors"
)

func encode(dt expr.DataType, values []float64) ([]byte, error) {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		var bits uint32
		switch dt {
		case expr.Float32:
			bits = math.Float32bits(float32(v))
		case expr.Int32:
			bits = uint32(int32(v)) //nolint:gosec // reinterpretation
		case expr.Uint32:
			bits = uint32(v)
		default:
			return nil, errors.Errorf("webgpu: %s buffers are not supported", dt)
		}
		binary.LittleEndian.PutUint32(out[4*i:], bits)
	}
	return out, nil
}

func decode(dt expr.DataType, data []byte) (float64, error) {
	if len(data) < 4 {
		return 0, errors.Errorf("webgpu: %d bytes is too short for %s", len(data), dt)
	}
	bits := binary.LittleEndian.Uint32(data)
	switch dt {
	case expr.Float32:
		return float64(math.Float32frombits(bits)), nil
	case expr.Int32:
		return float64(int32(bits)), nil //nolint:gosec // reinterpretation
	case expr.Uint32:
		return float64(bits), nil
	default:
		return 0, errors.Errorf("webgpu: %s buffers are not supported", dt)
	}
}
