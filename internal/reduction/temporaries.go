package reduction

import (
	"github.com/born-ml/reducejit/internal/device"
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/template"
	"github.com/pkg/errors"
)

// Reduction describes one scalar reduction of a batch.
type Reduction struct {
	Statement int           // Index of the statement in the batch.
	Node      int           // Index of the reduction node in the statement.
	Op        expr.OpType   // Combine operator.
	Inner     bool          // Inner product: the term is lhs * rhs.
	Type      expr.DataType // Element type of the accumulator.
}

// Temporary is the device buffer holding one partial result per work-group
// of stage 0 for a single reduction.
type Temporary struct {
	TypeName string
	Type     expr.DataType
	Buffer   device.Buffer
}

// scanReductions lists every scalar reduction in batch order, then node
// order, and checks that each can be reduced in dialect d.
func scanReductions(batch expr.Batch, d kernel.Dialect) ([]Reduction, error) {
	var out []Reduction
	for si := range batch {
		s := &batch[si]
		for _, ni := range s.Reductions() {
			n := s.Nodes[ni]
			op, err := Classify(n)
			if err != nil {
				return nil, template.Errorf(template.MalformedExpression, si, ni, "unsupported %s reduction", n.Op.Type)
			}

			dt := n.LHS.Type
			if !dt.IsFloat() {
				return nil, template.Errorf(template.UnsupportedType, si, ni, "cannot reduce %s elements", dt)
			}
			if !d.Supports(dt) {
				return nil, template.Errorf(template.UnsupportedType, si, ni, "%s has no %s support", d.Name(), dt)
			}

			out = append(out, Reduction{
				Statement: si,
				Node:      ni,
				Op:        op,
				Inner:     n.Op.Type == expr.OpInnerProd,
				Type:      dt,
			})
		}
	}
	return out, nil
}

// EnsureBuffers allocates one temporary per reduction on first use.
// Later calls return immediately, so the same buffers serve every launch
// of the plan.
func (p *Plan) EnsureBuffers() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.temporaries != nil {
		return nil
	}

	d := p.tpl.cfg.Dialect
	temps := make([]Temporary, 0, len(p.reductions))
	var total int64
	for _, r := range p.reductions {
		size := int64(p.tpl.cfg.NumGroups * r.Type.Size())
		buf, err := p.alloc.Allocate(size)
		if err != nil {
			for _, t := range temps {
				t.Buffer.Release()
			}
			return template.Wrap(template.DeviceFailure, r.Statement, r.Node,
				errors.Wrapf(err, "allocating %d-byte temporary", size))
		}
		temps = append(temps, Temporary{
			TypeName: d.TypeName(kernel.Scalar(r.Type)),
			Type:     r.Type,
			Buffer:   buf,
		})
		total += size
	}
	p.temporaries = temps

	p.tpl.logger.Debug("allocated reduction temporaries",
		"count", len(temps), "bytes", total, "num_groups", p.tpl.cfg.NumGroups)
	return nil
}

// Release frees the temporaries. The next EnsureBuffers allocates new ones.
func (p *Plan) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range p.temporaries {
		t.Buffer.Release()
	}
	p.temporaries = nil
}

// Temporaries returns the allocated temporaries in reduction order.
func (p *Plan) Temporaries() []Temporary {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]Temporary(nil), p.temporaries...)
}
