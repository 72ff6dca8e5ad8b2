//go:build windows

package main

import (
	"context"

	"github.com/born-ml/reducejit/internal/device/webgpu"
	"github.com/born-ml/reducejit/internal/reduction"
)

type webgpuBackend struct {
	*webgpu.Device
}

func newWebGPUBackend() (backend, error) {
	dev, err := webgpu.New()
	if err != nil {
		return nil, err
	}
	return webgpuBackend{dev}, nil
}

// Launch compiles both WGSL kernels, binds them and dispatches them in order.
func (b webgpuBackend) Launch(_ context.Context, p *reduction.Plan) error {
	for id := 0; id < reduction.NumKernels; id++ {
		k, err := b.Compile(p.Kernel(id).Name, p.Source(id))
		if err != nil {
			return err
		}
		defer k.Release()

		if err := p.Configure(id, k); err != nil {
			return err
		}
		if err := k.Dispatch(); err != nil {
			return err
		}
	}
	return nil
}
