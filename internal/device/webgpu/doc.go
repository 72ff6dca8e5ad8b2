// Package webgpu runs generated WGSL kernels on a WebGPU device through
// go-webgpu (github.com/go-webgpu/webgpu), which needs no CGO.
//
// The device is only built on windows, where the wgpu_native library is
// shipped alongside the binary.
package webgpu
