package reduction

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/template"
)

// Decomposition selects how stage 0 partitions the input across work-groups.
type Decomposition int

const (
	// Strided makes work-item g visit g, g+global_size, ... up to N.
	Strided Decomposition = iota
	// Block gives each work-group one contiguous chunk of ceil(N/num_groups)
	// elements, visited cooperatively by its work-items.
	Block
)

// String returns the flag name of the decomposition.
func (d Decomposition) String() string {
	switch d {
	case Strided:
		return "strided"
	case Block:
		return "block"
	default:
		return fmt.Sprintf("Decomposition(%d)", int(d))
	}
}

// ParseDecomposition maps a flag name to a Decomposition.
func ParseDecomposition(s string) (Decomposition, error) {
	switch strings.ToLower(s) {
	case "strided", "stride":
		return Strided, nil
	case "block", "chunk":
		return Block, nil
	default:
		return 0, template.Errorf(template.InvalidConfig, -1, -1, "unknown decomposition %q", s)
	}
}

// Config controls the generated reduction kernels.
type Config struct {
	SIMDWidth     int            // Lanes per vector element (1 = scalar).
	LocalSize     int            // Work-items per work-group, a power of two.
	NumGroups     int            // Work-groups of stage 0.
	Decomposition Decomposition  // Stage-0 work partitioning.
	Dialect       kernel.Dialect // Source language of the kernels.
	Logger        *slog.Logger   // Debug output; nil discards.
}

// DefaultConfig returns a configuration that suits most discrete GPUs.
func DefaultConfig() Config {
	return Config{
		SIMDWidth:     1,
		LocalSize:     128,
		NumGroups:     64,
		Decomposition: Strided,
		Dialect:       kernel.OpenCL{},
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if c.Dialect == nil {
		return template.Errorf(template.InvalidConfig, -1, -1, "no dialect")
	}
	if err := c.params().Validate(c.Dialect); err != nil {
		return err
	}
	if c.LocalSize&(c.LocalSize-1) != 0 {
		return template.Errorf(template.InvalidConfig, -1, -1, "local size %d is not a power of two", c.LocalSize)
	}
	if c.NumGroups < 1 {
		return template.Errorf(template.InvalidConfig, -1, -1, "num groups must be positive, got %d", c.NumGroups)
	}
	if c.Decomposition != Strided && c.Decomposition != Block {
		return template.Errorf(template.InvalidConfig, -1, -1, "unknown decomposition %d", int(c.Decomposition))
	}
	return nil
}

func (c Config) params() template.Params {
	return template.Params{
		SIMDWidth:  c.SIMDWidth,
		LocalSize0: c.LocalSize,
		LocalSize1: 1,
		NumKernels: 2,
	}
}
