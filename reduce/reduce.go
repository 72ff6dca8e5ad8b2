// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package reduce generates two-stage parallel scalar reduction kernels.
//
// Statements are built from device vectors and scalars, compiled once into
// a Plan and launched any number of times. Stage 0 reduces the input to one
// partial per work-group, stage 1 folds the partials in a single work-group
// and stores every statement's result.
//
// Example:
//
//	dev := reduce.NewHostDevice()
//	x, _ := dev.NewVector("x", reduce.Float32, []float64{1, 2, 3, 4})
//	s, _ := dev.NewScalar("s", reduce.Float32)
//
//	tpl, _ := reduce.New(reduce.DefaultConfig())
//	plan, err := tpl.Compile(reduce.Batch{reduce.Assign(s, reduce.Sum(reduce.V(x)))}, dev)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer plan.Release()
//
//	fmt.Println(plan.Source(0))
package reduce

import (
	"context"

	"github.com/born-ml/reducejit/internal/device"
	"github.com/born-ml/reducejit/internal/device/host"
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/reduction"
	"github.com/born-ml/reducejit/internal/simulate"
	"github.com/born-ml/reducejit/internal/template"
)

// Template compiles statement batches into plans.
type Template = reduction.Template

// Plan is a compiled batch that owns its temporary buffers.
type Plan = reduction.Plan

// Config controls the generated kernels.
type Config = reduction.Config

// Decomposition selects how stage 0 partitions the input.
type Decomposition = reduction.Decomposition

// Stage-0 work partitioning strategies.
const (
	Strided = reduction.Strided
	Block   = reduction.Block
)

// DefaultConfig returns a configuration that suits most discrete GPUs.
func DefaultConfig() Config {
	return reduction.DefaultConfig()
}

// New validates cfg and returns a template.
func New(cfg Config) (*Template, error) {
	return reduction.New(cfg)
}

// Dialect renders kernels in one source language.
type Dialect = kernel.Dialect

// Source dialects.
type (
	OpenCL = kernel.OpenCL
	WGSL   = kernel.WGSL
)

// DialectByName returns the dialect registered under name ("opencl", "wgsl").
func DialectByName(name string) (Dialect, error) {
	return kernel.ByName(name)
}

// Expression model.
type (
	DataType  = expr.DataType
	Vector    = expr.Vector
	Scalar    = expr.Scalar
	Statement = expr.Statement
	Batch     = expr.Batch
	Expr      = expr.Expr
)

// Element types.
const (
	Float32 = expr.Float32
	Float64 = expr.Float64
	Int32   = expr.Int32
	Uint32  = expr.Uint32
)

// Expression builders.
var (
	V         = expr.V
	S         = expr.S
	Const     = expr.Const
	Add       = expr.Add
	Sub       = expr.Sub
	Mul       = expr.Mul
	Div       = expr.Div
	Sum       = expr.Sum
	Prod      = expr.Prod
	Min       = expr.Min
	Max       = expr.Max
	Dot       = expr.Dot
	Assign    = expr.Assign
	AddAssign = expr.AddAssign
)

// Error is a classified generator failure.
type Error = template.Error

// Kind classifies generator failures.
type Kind = template.Kind

// Failure kinds.
const (
	UnsupportedType     = template.UnsupportedType
	MalformedExpression = template.MalformedExpression
	DeviceFailure       = template.DeviceFailure
	InvalidConfig       = template.InvalidConfig
)

// Sentinel errors for errors.Is.
var (
	ErrUnsupportedType     = template.ErrUnsupportedType
	ErrMalformedExpression = template.ErrMalformedExpression
	ErrDeviceFailure       = template.ErrDeviceFailure
	ErrInvalidConfig       = template.ErrInvalidConfig
)

// Allocator creates device buffers for plan temporaries.
type Allocator = device.Allocator

// HostDevice keeps buffers in host memory.
type HostDevice = host.Device

// NewHostDevice returns an unbounded host device.
func NewHostDevice() *HostDevice {
	return host.New()
}

// Simulate launches both kernels of p on the host. Every buffer of the plan
// must come from a HostDevice. It returns the final value of every
// reduction in temporary order.
func Simulate(ctx context.Context, p *Plan) ([]float64, error) {
	res, err := simulate.Run(ctx, p, simulate.DefaultOptions())
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}
