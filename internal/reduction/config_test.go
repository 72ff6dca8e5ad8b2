package reduction

import (
	"testing"

	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no dialect", func(c *Config) { c.Dialect = nil }},
		{"simd 3", func(c *Config) { c.SIMDWidth = 3 }},
		{"simd 8 in wgsl", func(c *Config) { c.SIMDWidth = 8; c.Dialect = kernel.WGSL{} }},
		{"local size not power of two", func(c *Config) { c.LocalSize = 96 }},
		{"local size too large for wgsl", func(c *Config) { c.LocalSize = 512; c.Dialect = kernel.WGSL{} }},
		{"no groups", func(c *Config) { c.NumGroups = 0 }},
		{"unknown decomposition", func(c *Config) { c.Decomposition = Decomposition(7) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), template.ErrInvalidConfig)

			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestParseDecomposition(t *testing.T) {
	for _, d := range []Decomposition{Strided, Block} {
		got, err := ParseDecomposition(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}

	_, err := ParseDecomposition("diagonal")
	assert.ErrorIs(t, err, template.ErrInvalidConfig)
}

func TestTemplate_LocalMemoryBytes(t *testing.T) {
	tpl, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 128*4, tpl.LocalMemoryBytes(expr.Float32))
	assert.Equal(t, 128*8, tpl.LocalMemoryBytes(expr.Float64))
}
