package reduction

import (
	"strconv"

	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/render"
)

// core0 emits the first kernel: every work-item folds its share of the
// input into private accumulators, the work-group reduces them in local
// memory and work-item 0 stores the group's partial result.
func (g *generator) core0(k *kernel.Kernel, exprs []*render.Reduction) error {
	d := g.tpl.cfg.Dialect
	r := g.tpl.base.Renderer()
	accs, bufs, ops, types := g.names()

	body := &k.Body
	body.Let(kernel.Index, "lid", d.Builtin(kernel.LocalID))
	for i := range exprs {
		neutral, err := NeutralElement(d, ops[i], g.reductions[i].Type)
		if err != nil {
			return err
		}
		body.Declare(types[i], accs[i], neutral)
	}

	var init, bound, step string
	switch g.tpl.cfg.Decomposition {
	case Block:
		groups := d.Builtin(kernel.NumGroups)
		body.Let(kernel.Index, "chunk_size", "(N + "+groups+" - "+d.Uint(1)+") / "+groups)
		body.Let(kernel.Index, "chunk_start", d.Builtin(kernel.GroupID)+" * chunk_size")
		body.Let(kernel.Index, "chunk_end", d.Min("chunk_start + chunk_size", "N", kernel.Index))
		init, bound, step = "chunk_start + lid", "chunk_end", d.Builtin(kernel.LocalSize)
	default:
		init, bound, step = d.Builtin(kernel.GlobalID), "N", d.Builtin(kernel.GlobalSize)
	}

	loop := body.For("i", init, bound, step)
	idx := render.Index{I: "i", Bound: "N"}

	cache := make(map[string]bool)
	for _, e := range exprs {
		r.Fetch(loop, cache, e.Statement, e.Root, idx, e.Mapping)
	}

	lanes := []int{render.NoLane}
	if w := g.tpl.cfg.SIMDWidth; w > 1 {
		lanes = make([]int, w)
		for a := range lanes {
			lanes[a] = a
		}
	}
	for i, e := range exprs {
		for _, lane := range lanes {
			term, err := r.LHS(e.Statement, e.Root, idx, lane, e.Mapping)
			if err != nil {
				return wrapRender(e, err)
			}
			if g.reductions[i].Inner {
				rhs, err := r.RHS(e.Statement, e.Root, idx, lane, e.Mapping)
				if err != nil {
					return wrapRender(e, err)
				}
				term += " * " + rhs
			}
			loop.Assign(accs[i], combineText(d, ops[i], accs[i], term, types[i]))
		}
	}

	g.declareShared(k, bufs, types)
	for i := range exprs {
		body.Assign(bufs[i]+"[lid]", accs[i])
	}
	reduceLocal(body, d, g.tpl.cfg.LocalSize, bufs, ops, types)

	write := body.If("lid == " + d.Uint(0))
	for i := range exprs {
		write.Assign(tempName(i)+"["+d.Builtin(kernel.GroupID)+"]", bufs[i]+"[0]")
	}
	return nil
}

func tempName(i int) string {
	return "temp" + strconv.Itoa(i)
}
