// Package render maps statement operands to kernel-level names and renders
// expression subtrees as inline kernel source.
package render

import (
	"fmt"

	"github.com/born-ml/reducejit/internal/expr"
)

// Kind discriminates mapped objects.
type Kind int

// Mapped object kinds.
const (
	KindVector Kind = iota
	KindScalar
	KindReduction
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindVector:
		return "vector"
	case KindScalar:
		return "scalar"
	case KindReduction:
		return "reduction"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Mapped is anything a statement position maps to.
type Mapped interface {
	Kind() Kind
	// AsReduction returns the mapped reduction, if this is one.
	AsReduction() (*Reduction, bool)
}

// Side selects a slot of a node.
type Side int

// Node slots. Parent refers to the node itself.
const (
	Parent Side = iota
	LHS
	RHS
)

// Key addresses a position in a statement.
type Key struct {
	Node int
	Side Side
}

// Mapping maps statement positions to mapped objects.
type Mapping map[Key]Mapped

// Handle is a vector or scalar argument shared by every statement of a batch.
type Handle struct {
	kind     Kind
	Name     string
	Type     expr.DataType
	Vector   *expr.Vector
	Scalar   *expr.Scalar
	register string
}

// Kind implements Mapped.
func (h *Handle) Kind() Kind { return h.kind }

// AsReduction implements Mapped.
func (h *Handle) AsReduction() (*Reduction, bool) { return nil, false }

// Register returns the private register the handle was fetched into, if any.
func (h *Handle) Register() string { return h.register }

// Reduction is a scalar reduction subtree of a statement.
type Reduction struct {
	Statement      *expr.Statement
	StatementIndex int
	Root           int
	Mapping        Mapping
	access         string
}

// Kind implements Mapped.
func (r *Reduction) Kind() Kind { return KindReduction }

// AsReduction implements Mapped.
func (r *Reduction) AsReduction() (*Reduction, bool) { return r, true }

// Node returns the reduction's root node.
func (r *Reduction) Node() expr.Node { return r.Statement.Nodes[r.Root] }

// AccessName returns the text that replaces the reduction when rendered.
func (r *Reduction) AccessName() string { return r.access }

// SetAccessName makes later renderings of the reduction emit name.
func (r *Reduction) SetAccessName(name string) { r.access = name }

// Table holds the handles of a batch in first-use order.
type Table struct {
	handles  []*Handle
	vectors  map[*expr.Vector]*Handle
	scalars  map[*expr.Scalar]*Handle
	nVectors int
	nScalars int
}

// Handles returns every handle in first-use order. This is the argument
// order of the generated kernels.
func (t *Table) Handles() []*Handle {
	return t.handles
}

func (t *Table) intern(op expr.Operand) *Handle {
	switch op.Family {
	case expr.VectorFamily:
		if h, ok := t.vectors[op.Vector]; ok {
			return h
		}
		h := &Handle{kind: KindVector, Name: fmt.Sprintf("vec%d", t.nVectors), Type: op.Vector.Type, Vector: op.Vector}
		t.nVectors++
		t.vectors[op.Vector] = h
		t.handles = append(t.handles, h)
		return h
	case expr.ScalarFamily:
		if h, ok := t.scalars[op.Scalar]; ok {
			return h
		}
		h := &Handle{kind: KindScalar, Name: fmt.Sprintf("scal%d", t.nScalars), Type: op.Scalar.Type, Scalar: op.Scalar}
		t.nScalars++
		t.scalars[op.Scalar] = h
		t.handles = append(t.handles, h)
		return h
	default:
		return nil
	}
}

// Map builds one Mapping per statement and the handle table of the batch.
// Statements must already be valid.
func Map(batch expr.Batch) ([]Mapping, *Table) {
	table := &Table{
		vectors: make(map[*expr.Vector]*Handle),
		scalars: make(map[*expr.Scalar]*Handle),
	}
	mappings := make([]Mapping, len(batch))

	for si := range batch {
		s := &batch[si]
		m := make(Mapping)
		for ni, n := range s.Nodes {
			if expr.IsScalarReduction(n) {
				m[Key{ni, Parent}] = &Reduction{Statement: s, StatementIndex: si, Root: ni, Mapping: m}
			}
			if h := table.intern(n.LHS); h != nil {
				m[Key{ni, LHS}] = h
			}
			if h := table.intern(n.RHS); h != nil {
				m[Key{ni, RHS}] = h
			}
		}
		mappings[si] = m
	}
	return mappings, table
}

// Reductions lists the mapped reductions of every statement in batch order,
// then node order.
func Reductions(batch expr.Batch, mappings []Mapping) []*Reduction {
	var out []*Reduction
	for si := range batch {
		for ni := range batch[si].Nodes {
			if m, ok := mappings[si][Key{ni, Parent}]; ok {
				if r, ok := m.AsReduction(); ok {
					out = append(out, r)
				}
			}
		}
	}
	return out
}
