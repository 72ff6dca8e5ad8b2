package render

import (
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/pkg/errors"
)

// Index is the element index expression and its bound.
type Index struct {
	I     string
	Bound string
}

// NoLane renders SIMD values whole.
const NoLane = -1

// Renderer turns statement subtrees into inline kernel source.
type Renderer struct {
	Dialect kernel.Dialect
	SIMD    int
}

// LHS renders the left operand subtree of node root.
func (r Renderer) LHS(s *expr.Statement, root int, idx Index, lane int, m Mapping) (string, error) {
	return r.operand(s, root, LHS, s.Nodes[root].LHS, idx, lane, m)
}

// RHS renders the right operand subtree of node root.
func (r Renderer) RHS(s *expr.Statement, root int, idx Index, lane int, m Mapping) (string, error) {
	return r.operand(s, root, RHS, s.Nodes[root].RHS, idx, lane, m)
}

// Statement renders the complete statement, typically an assignment.
func (r Renderer) Statement(s *expr.Statement, idx Index, lane int, m Mapping) (string, error) {
	return r.node(s, s.Root, idx, lane, m)
}

// Fetch emits one register load for every vector read under node root
// that is not in cache yet, and points the handles at their registers.
func (r Renderer) Fetch(b *kernel.Block, cache map[string]bool, s *expr.Statement, root int, idx Index, m Mapping) {
	n := s.Nodes[root]
	for _, side := range []Side{LHS, RHS} {
		op := n.LHS
		if side == RHS {
			op = n.RHS
		}
		switch op.Family {
		case expr.CompositeFamily:
			r.Fetch(b, cache, s, op.Node, idx, m)
		case expr.VectorFamily:
			h, ok := m[Key{root, side}].(*Handle)
			if !ok {
				continue
			}
			reg := h.Name + "_reg"
			if !cache[h.Name] {
				cache[h.Name] = true
				b.Let(kernel.Vec(h.Type, r.SIMD), reg, h.Name+"["+idx.I+"]")
			}
			h.register = reg
		}
	}
}

func (r Renderer) node(s *expr.Statement, ni int, idx Index, lane int, m Mapping) (string, error) {
	if mapped, ok := m[Key{ni, Parent}]; ok {
		if red, ok := mapped.AsReduction(); ok {
			if red.AccessName() == "" {
				return "", errors.Errorf("reduction node %d rendered before it was reduced", ni)
			}
			return red.AccessName(), nil
		}
	}

	n := s.Nodes[ni]
	lhs, err := r.operand(s, ni, LHS, n.LHS, idx, lane, m)
	if err != nil {
		return "", err
	}
	rhs, err := r.operand(s, ni, RHS, n.RHS, idx, lane, m)
	if err != nil {
		return "", err
	}

	switch n.Op.Type {
	case expr.OpAssign:
		return lhs + " = " + rhs, nil
	case expr.OpInplaceAdd:
		return lhs + " += " + rhs, nil
	case expr.OpInplaceSub:
		return lhs + " -= " + rhs, nil
	case expr.OpAdd:
		return "(" + lhs + " + " + rhs + ")", nil
	case expr.OpSub:
		return "(" + lhs + " - " + rhs + ")", nil
	case expr.OpMul:
		return "(" + lhs + " * " + rhs + ")", nil
	case expr.OpDiv:
		return "(" + lhs + " / " + rhs + ")", nil
	default:
		return "", errors.Errorf("node %d: cannot render %s", ni, n.Op.Type)
	}
}

func (r Renderer) operand(s *expr.Statement, ni int, side Side, op expr.Operand, idx Index, lane int, m Mapping) (string, error) {
	switch op.Family {
	case expr.CompositeFamily:
		return r.node(s, op.Node, idx, lane, m)
	case expr.ConstantFamily:
		return r.Dialect.Literal(op.Value, op.Type), nil
	case expr.ScalarFamily, expr.VectorFamily:
		h, ok := m[Key{ni, side}].(*Handle)
		if !ok {
			return "", errors.Errorf("node %d: operand is not mapped", ni)
		}
		if h.kind == KindScalar {
			return h.Name + "[0]", nil
		}
		text := h.Name + "[" + idx.I + "]"
		if h.register != "" {
			text = h.register
		}
		if lane != NoLane && r.SIMD > 1 {
			text = r.Dialect.Lane(text, lane)
		}
		return text, nil
	default:
		return "", errors.Errorf("node %d: cannot render %s operand", ni, op.Family)
	}
}
