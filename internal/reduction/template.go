// Package reduction generates two-stage parallel scalar reductions.
//
// A Template compiles a batch of statements into a Plan. Stage 0 reduces
// the input to one partial result per work-group, stage 1 reduces the
// partials in a single work-group and evaluates the original statements
// with the reduced values substituted in. The Plan owns the temporary
// device buffers that carry partials from stage 0 to stage 1 and is reused
// across launches.
package reduction

import (
	"log/slog"
	"strconv"

	"github.com/born-ml/reducejit/internal/device"
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/render"
	"github.com/born-ml/reducejit/internal/template"
)

const kernelPrefix = "reduce"

// Template is an immutable reduction kernel template.
type Template struct {
	base   template.Base
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and returns a template.
func New(cfg Config) (*Template, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Template{
		base:   template.Base{Params: cfg.params(), Dialect: cfg.Dialect},
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Config returns the template configuration.
func (t *Template) Config() Config {
	return t.cfg
}

// LocalMemoryBytes returns the local memory one reduction of type dt uses
// per work-group.
func (t *Template) LocalMemoryBytes(dt expr.DataType) int {
	return t.cfg.LocalSize * dt.Size()
}

// Compile generates both kernels for batch and allocates the temporaries
// through alloc. Nothing is allocated when the batch is rejected.
func (t *Template) Compile(batch expr.Batch, alloc device.Allocator) (*Plan, error) {
	if len(batch) == 0 {
		return nil, template.Errorf(template.MalformedExpression, -1, -1, "empty batch")
	}
	for si := range batch {
		if err := batch[si].Validate(); err != nil {
			return nil, template.Wrap(template.MalformedExpression, si, -1, err)
		}
	}

	reductions, err := scanReductions(batch, t.cfg.Dialect)
	if err != nil {
		return nil, err
	}
	if len(reductions) == 0 {
		return nil, template.Errorf(template.MalformedExpression, -1, -1, "batch has no scalar reduction")
	}

	length, err := VectorLength(&batch[0])
	if err != nil {
		return nil, withStatement(err, 0)
	}
	if err := checkLengths(batch, reductions, length); err != nil {
		return nil, err
	}
	if length%t.cfg.SIMDWidth != 0 {
		return nil, template.Errorf(template.InvalidConfig, 0, -1,
			"vector length %d is not a multiple of simd width %d", length, t.cfg.SIMDWidth)
	}

	p := &Plan{
		tpl:        t,
		batch:      batch,
		reductions: reductions,
		length:     length,
		alloc:      alloc,
	}

	g := &generator{tpl: t, reductions: reductions}
	for id := range p.kernels {
		k, err := t.base.Generate(g, kernelPrefix, id, batch)
		if err != nil {
			return nil, err
		}
		src, err := t.cfg.Dialect.Render(k)
		if err != nil {
			return nil, template.Wrap(template.UnsupportedType, -1, -1, err)
		}
		p.kernels[id] = k
		p.sources[id] = src
		t.logger.Debug("generated kernel", "name", k.Name, "dialect", t.cfg.Dialect.Name(), "params", len(k.Params))
	}

	if err := p.EnsureBuffers(); err != nil {
		return nil, err
	}

	t.logger.Debug("compiled reduction plan",
		"statements", len(batch),
		"reductions", len(reductions),
		"length", length,
		"decomposition", t.cfg.Decomposition.String())
	return p, nil
}

// generator implements template.Hooks for one batch.
type generator struct {
	tpl        *Template
	reductions []Reduction
}

// ExtraParams implements template.Hooks: the effective element count, then
// one temporary per reduction.
func (g *generator) ExtraParams() []kernel.Param {
	params := []kernel.Param{{Name: "N", Type: kernel.Index, Kind: kernel.ParamValue}}
	for i, r := range g.reductions {
		params = append(params, kernel.Param{Name: tempName(i), Type: kernel.Scalar(r.Type), Kind: kernel.ParamBuffer})
	}
	return params
}

// Core implements template.Hooks.
func (g *generator) Core(kernelID int, k *kernel.Kernel, batch expr.Batch, mappings []render.Mapping) error {
	exprs := render.Reductions(batch, mappings)
	if len(exprs) != len(g.reductions) {
		return template.Errorf(template.MalformedExpression, -1, -1,
			"%d reductions mapped for code generation, %d found when allocating", len(exprs), len(g.reductions))
	}
	for i, e := range exprs {
		if r := g.reductions[i]; e.StatementIndex != r.Statement || e.Root != r.Node {
			return template.Errorf(template.MalformedExpression, e.StatementIndex, e.Root,
				"reduction %d is mapped out of order", i)
		}
	}

	if kernelID == 0 {
		return g.core0(k, exprs)
	}
	return g.core1(k, exprs, batch, mappings)
}

// names returns per-reduction accumulator and shared array names, combine
// operators and accumulator types.
func (g *generator) names() (accs, bufs []string, ops []expr.OpType, types []kernel.Type) {
	for i, r := range g.reductions {
		accs = append(accs, "acc"+strconv.Itoa(i))
		bufs = append(bufs, "buf"+strconv.Itoa(i))
		ops = append(ops, r.Op)
		types = append(types, kernel.Scalar(r.Type))
	}
	return accs, bufs, ops, types
}

func (g *generator) declareShared(k *kernel.Kernel, bufs []string, types []kernel.Type) {
	for i := range bufs {
		k.Shared = append(k.Shared, kernel.Shared{Name: bufs[i], Type: types[i], Len: g.tpl.cfg.LocalSize})
	}
}

func wrapRender(e *render.Reduction, err error) error {
	return template.Wrap(template.MalformedExpression, e.StatementIndex, e.Root, err)
}

func wrapStatement(si int, err error) error {
	return template.Wrap(template.MalformedExpression, si, -1, err)
}

// withStatement fills in the statement index of a positional error.
func withStatement(err error, si int) error {
	if e, ok := err.(*template.Error); ok && e.Statement < 0 {
		c := *e
		c.Statement = si
		return &c
	}
	return err
}
