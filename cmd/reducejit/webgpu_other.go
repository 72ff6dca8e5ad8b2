//go:build !windows

package main

import "github.com/pkg/errors"

func newWebGPUBackend() (backend, error) {
	return nil, errors.New("-run webgpu is only supported on windows")
}
