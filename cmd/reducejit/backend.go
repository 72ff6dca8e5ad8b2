package main

import (
	"context"

	"github.com/born-ml/reducejit/internal/device"
	"github.com/born-ml/reducejit/internal/device/host"
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/reduction"
	"github.com/born-ml/reducejit/internal/simulate"
	"github.com/pkg/errors"
)

// backend allocates the demo operands and launches a plan.
type backend interface {
	device.Allocator
	NewVector(name string, dt expr.DataType, values []float64) (*expr.Vector, error)
	NewScalar(name string, dt expr.DataType) (*expr.Scalar, error)
	Launch(ctx context.Context, p *reduction.Plan) error
	ReadScalar(s *expr.Scalar) (float64, error)
	Release()
}

func newBackend(name string) (backend, error) {
	switch name {
	case "none", "host":
		return hostBackend{host.New()}, nil
	case "webgpu":
		return newWebGPUBackend()
	default:
		return nil, errors.Errorf("unknown -run target %q", name)
	}
}

type hostBackend struct {
	*host.Device
}

func (hostBackend) Launch(ctx context.Context, p *reduction.Plan) error {
	_, err := simulate.Run(ctx, p, simulate.DefaultOptions())
	return err
}

func (hostBackend) ReadScalar(s *expr.Scalar) (float64, error) {
	buf, ok := s.Buffer.(*host.Buffer)
	if !ok {
		return 0, errors.Errorf("scalar %q is not in host memory", s.Name)
	}
	return buf.Float(0, s.Type), nil
}

func (hostBackend) Release() {}
