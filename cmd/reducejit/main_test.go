package main

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"-op", "dot", "-n", "64", "-simd", "4", "-dialect", "wgsl"})
	require.NoError(t, err)
	assert.Equal(t, "dot", o.op)
	assert.Equal(t, 64, o.n)
	assert.Equal(t, 4, o.simd)
	assert.Equal(t, "wgsl", o.dialect)
	assert.Equal(t, "none", o.run)

	_, err = parseFlags([]string{"-n", "-1"})
	assert.Error(t, err)
}

func TestParseFlags_Dialect(t *testing.T) {
	o, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "opencl", o.dialect)

	o, err = parseFlags([]string{"-run", "webgpu"})
	require.NoError(t, err)
	assert.Equal(t, "wgsl", o.dialect)

	_, err = parseFlags([]string{"-run", "webgpu", "-dialect", "opencl"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wgsl")
}

func TestRun_PrintsKernels(t *testing.T) {
	o, err := parseFlags([]string{"-n", "256", "-local", "64", "-groups", "8"})
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), o, &stdout, &stderr))

	out := stdout.String()
	assert.Contains(t, out, "kernel 0: global 512, local 64")
	assert.Contains(t, out, "kernel 1: global 64, local 64")
	assert.Contains(t, out, "reduce_0(")
	assert.Contains(t, out, "reduce_1(")
	assert.Contains(t, out, "  2 N      uint32(256)")
	assert.NotContains(t, out, "result:")
}

func TestRun_Host(t *testing.T) {
	for _, op := range []string{"sum", "prod", "min", "max", "dot"} {
		t.Run(op, func(t *testing.T) {
			o, err := parseFlags([]string{"-op", op, "-n", "96", "-type", "float64", "-local", "8", "-groups", "4",
				"-simd", "2", "-decomp", "block", "-run", "host"})
			require.NoError(t, err)

			var stdout, stderr bytes.Buffer
			require.NoError(t, run(context.Background(), o, &stdout, &stderr))

			var result, reference string
			for _, line := range strings.Split(stdout.String(), "\n") {
				if v, ok := strings.CutPrefix(line, "result:"); ok {
					result = strings.TrimSpace(v)
				}
				if v, ok := strings.CutPrefix(line, "reference:"); ok {
					reference = strings.TrimSpace(v)
				}
			}
			require.NotEmpty(t, result)
			got, err := strconv.ParseFloat(result, 64)
			require.NoError(t, err)
			want, err := strconv.ParseFloat(reference, 64)
			require.NoError(t, err)
			assert.InEpsilon(t, want, got, 1e-9)
		})
	}
}

func TestRun_Verbose(t *testing.T) {
	o, err := parseFlags([]string{"-n", "16", "-local", "4", "-groups", "2", "-v"})
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), o, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "compiled reduction plan")
}

func TestRun_Errors(t *testing.T) {
	tests := [][]string{
		{"-op", "mean"},
		{"-type", "int8"},
		{"-dialect", "cuda"},
		{"-decomp", "diagonal"},
		{"-local", "100"},
		{"-run", "fpga"},
		{"-dialect", "wgsl", "-type", "float64"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			o, err := parseFlags(args)
			require.NoError(t, err)

			var stdout, stderr bytes.Buffer
			assert.Error(t, run(context.Background(), o, &stdout, &stderr))
		})
	}
}
