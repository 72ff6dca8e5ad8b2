package reduction

import (
	"math"

	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/template"
)

// Classify returns the operator that combines partial results of the
// reduction node n. Inner products combine with addition: the
// multiplication belongs to the per-element term.
func Classify(n expr.Node) (expr.OpType, error) {
	if n.Op.Type == expr.OpInnerProd {
		return expr.OpAdd, nil
	}
	if n.Op.Family != expr.OpReductionFamily {
		return expr.OpInvalid, template.Errorf(template.MalformedExpression, -1, -1, "%s is not a reduction", n.Op.Type)
	}
	switch n.Op.Type {
	case expr.OpAdd, expr.OpMul, expr.OpMin, expr.OpMax:
		return n.Op.Type, nil
	default:
		return expr.OpInvalid, template.Errorf(template.MalformedExpression, -1, -1, "no neutral element for %s reduction", n.Op.Type)
	}
}

// NeutralElement returns the source literal of op's identity for dt.
func NeutralElement(d kernel.Dialect, op expr.OpType, dt expr.DataType) (string, error) {
	switch op {
	case expr.OpAdd:
		return d.Literal(0, dt), nil
	case expr.OpMul:
		return d.Literal(1, dt), nil
	case expr.OpMin:
		return d.Infinity(dt, false), nil
	case expr.OpMax:
		return d.Infinity(dt, true), nil
	default:
		return "", template.Errorf(template.MalformedExpression, -1, -1, "no neutral element for %s", op)
	}
}

// Neutral returns the numeric identity of op.
func Neutral(op expr.OpType) (float64, error) {
	switch op {
	case expr.OpAdd:
		return 0, nil
	case expr.OpMul:
		return 1, nil
	case expr.OpMin:
		return math.Inf(1), nil
	case expr.OpMax:
		return math.Inf(-1), nil
	default:
		return 0, template.Errorf(template.MalformedExpression, -1, -1, "no neutral element for %s", op)
	}
}

// Combine applies op to a and b.
func Combine(op expr.OpType, a, b float64) float64 {
	switch op {
	case expr.OpAdd:
		return a + b
	case expr.OpMul:
		return a * b
	case expr.OpMin:
		return math.Min(a, b)
	case expr.OpMax:
		return math.Max(a, b)
	default:
		panic("reduction: combine with " + op.String())
	}
}

// combineText renders "acc op x" in dialect d.
func combineText(d kernel.Dialect, op expr.OpType, acc, x string, t kernel.Type) string {
	switch op {
	case expr.OpMul:
		return acc + " * " + x
	case expr.OpMin:
		return d.Min(acc, x, t)
	case expr.OpMax:
		return d.Max(acc, x, t)
	default:
		return acc + " + " + x
	}
}
