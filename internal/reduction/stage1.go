package reduction

import (
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/render"
)

// core1 emits the second kernel. It must run as a single work-group: the
// work-items fold every partial result, reduce in local memory, and
// work-item 0 evaluates each statement of the batch with the reductions
// replaced by their final values.
func (g *generator) core1(k *kernel.Kernel, exprs []*render.Reduction, batch expr.Batch, mappings []render.Mapping) error {
	d := g.tpl.cfg.Dialect
	r := g.tpl.base.Renderer()
	accs, bufs, ops, types := g.names()

	body := &k.Body
	body.Let(kernel.Index, "lid", d.Builtin(kernel.LocalID))
	g.declareShared(k, bufs, types)
	for i := range exprs {
		neutral, err := NeutralElement(d, ops[i], g.reductions[i].Type)
		if err != nil {
			return err
		}
		body.Declare(types[i], accs[i], neutral)
	}

	loop := body.For("i", "lid", d.Uint(g.tpl.cfg.NumGroups), d.Builtin(kernel.LocalSize))
	for i := range exprs {
		loop.Assign(accs[i], combineText(d, ops[i], accs[i], tempName(i)+"[i]", types[i]))
	}

	for i := range exprs {
		body.Assign(bufs[i]+"[lid]", accs[i])
	}
	reduceLocal(body, d, g.tpl.cfg.LocalSize, bufs, ops, types)

	for i, e := range exprs {
		e.SetAccessName(bufs[i] + "[0]")
	}

	store := body.If("lid == " + d.Uint(0))
	idx := render.Index{I: d.Uint(0), Bound: "N"}
	for si := range batch {
		text, err := r.Statement(&batch[si], idx, render.NoLane, mappings[si])
		if err != nil {
			return wrapStatement(si, err)
		}
		store.Add(&kernel.Raw{Text: text})
	}
	return nil
}
