package reduction

import (
	"github.com/born-ml/reducejit/internal/device"
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/template"
)

// VectorLength returns the length of the vector driving the first scalar
// reduction of s. The reduction's left operand is either that vector or a
// node with a vector on one of its sides.
func VectorLength(s *expr.Statement) (int, error) {
	for ni, n := range s.Nodes {
		if !expr.IsScalarReduction(n) {
			continue
		}
		if n.LHS.Family == expr.VectorFamily {
			return n.LHS.Vector.Size, nil
		}
		if n.LHS.Family != expr.CompositeFamily || n.LHS.Node < 0 || n.LHS.Node >= len(s.Nodes) {
			return 0, template.Errorf(template.MalformedExpression, -1, ni, "reduction operand is a %s", n.LHS.Family)
		}

		inner := s.Nodes[n.LHS.Node]
		if inner.LHS.Family == expr.VectorFamily {
			return inner.LHS.Vector.Size, nil
		}
		if inner.RHS.Family == expr.VectorFamily {
			return inner.RHS.Vector.Size, nil
		}
		return 0, template.Errorf(template.MalformedExpression, -1, ni, "no vector operand under node %d", n.LHS.Node)
	}
	return 0, template.Errorf(template.MalformedExpression, -1, -1, "statement has no scalar reduction")
}

// Geometry returns the launch geometry of kernel kernelID. Stage 1 always
// runs as a single work-group.
func (p *Plan) Geometry(kernelID int) device.Geometry {
	local := p.tpl.base.LocalSizes(kernelID)
	g := device.Geometry{Local: local, Global: [2]int{local[0], 1}}
	if kernelID == 0 {
		g.Global[0] = local[0] * p.tpl.cfg.NumGroups
	}
	return g
}

// checkLengths rejects a batch in which a vector under any reduction has a
// length other than n. Every reduction runs over the same N work-items, so
// a shorter vector would be read past its end and a longer one truncated.
func checkLengths(batch expr.Batch, reductions []Reduction, n int) error {
	for _, r := range reductions {
		s := &batch[r.Statement]
		var bad *expr.Vector
		walkVectors(s, r.Node, func(v *expr.Vector) {
			if bad == nil && v.Size != n {
				bad = v
			}
		})
		if bad != nil {
			return template.Errorf(template.MalformedExpression, r.Statement, r.Node,
				"vector %q has %d elements, want %d", bad.Name, bad.Size, n)
		}
	}
	return nil
}

// walkVectors calls fn for every vector operand in the subtree rooted at
// node ni. s must be valid, so the walk terminates.
func walkVectors(s *expr.Statement, ni int, fn func(v *expr.Vector)) {
	n := s.Nodes[ni]
	for _, op := range [2]expr.Operand{n.LHS, n.RHS} {
		switch op.Family {
		case expr.VectorFamily:
			fn(op.Vector)
		case expr.CompositeFamily:
			walkVectors(s, op.Node, fn)
		}
	}
}
