package expr

import (
	"fmt"

	"github.com/born-ml/reducejit/internal/device"
	"github.com/pkg/errors"
)

// Family classifies what an operand slot holds.
type Family int

// Operand families.
const (
	InvalidFamily Family = iota
	CompositeFamily
	ScalarFamily
	ConstantFamily
	VectorFamily
	MatrixFamily
)

// String returns a human-readable name for the family.
func (f Family) String() string {
	switch f {
	case InvalidFamily:
		return "invalid"
	case CompositeFamily:
		return "composite"
	case ScalarFamily:
		return "scalar"
	case ConstantFamily:
		return "constant"
	case VectorFamily:
		return "vector"
	case MatrixFamily:
		return "matrix"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// OpFamily groups operators by arity and semantics.
type OpFamily int

// Operator families.
const (
	OpInvalidFamily OpFamily = iota
	OpAssignmentFamily
	OpBinaryFamily
	// OpReductionFamily reduces its left vector operand to a scalar using
	// the operator type as the combine operation.
	OpReductionFamily
)

// OpType is the concrete operation of a node.
type OpType int

// Operation types.
const (
	OpInvalid OpType = iota
	OpAssign
	OpInplaceAdd
	OpInplaceSub
	OpAdd
	OpSub
	OpMul // element-wise product
	OpDiv
	OpMin
	OpMax
	OpInnerProd
)

// String returns a human-readable name for the operation.
func (t OpType) String() string {
	switch t {
	case OpAssign:
		return "assign"
	case OpInplaceAdd:
		return "inplace_add"
	case OpInplaceSub:
		return "inplace_sub"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	case OpInnerProd:
		return "inner_prod"
	default:
		return fmt.Sprintf("OpType(%d)", int(t))
	}
}

// Operator is the operation tag of a node.
type Operator struct {
	Family OpFamily
	Type   OpType
}

// Vector is a device vector handle.
type Vector struct {
	Name   string
	Size   int
	Type   DataType
	Buffer device.Buffer
}

// Scalar is a device scalar handle (a one-element buffer).
type Scalar struct {
	Name   string
	Type   DataType
	Buffer device.Buffer
}

// Operand is one side of a node.
type Operand struct {
	Family Family
	// Type is the element type. For composite operands it is the element
	// type of the referenced subtree.
	Type DataType

	Node   int     // CompositeFamily
	Vector *Vector // VectorFamily
	Scalar *Scalar // ScalarFamily
	Value  float64 // ConstantFamily
}

// Node is a single operation of a statement.
type Node struct {
	LHS Operand
	Op  Operator
	RHS Operand
}

// Statement is an immutable expression tree stored as a node array.
type Statement struct {
	Nodes []Node
	Root  int
}

// Batch is an ordered set of statements compiled and launched together.
type Batch []Statement

// IsScalarReduction reports whether the node reduces a vector to a scalar.
func IsScalarReduction(n Node) bool {
	return n.Op.Family == OpReductionFamily || n.Op.Type == OpInnerProd
}

// RootNode returns the root node of the statement.
func (s *Statement) RootNode() Node {
	return s.Nodes[s.Root]
}

// Reductions returns the indices of every scalar reduction node in node order.
func (s *Statement) Reductions() []int {
	var idx []int
	for i, n := range s.Nodes {
		if IsScalarReduction(n) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Validate checks that node references are in range, that the nodes form a
// tree reachable from the root, and that the root assigns into a scalar.
func (s *Statement) Validate() error {
	if len(s.Nodes) == 0 {
		return errors.New("statement has no nodes")
	}
	if s.Root < 0 || s.Root >= len(s.Nodes) {
		return errors.Errorf("root index %d out of range [0, %d)", s.Root, len(s.Nodes))
	}

	root := s.Nodes[s.Root]
	if root.Op.Family != OpAssignmentFamily {
		return errors.Errorf("root node %d is %s, want an assignment", s.Root, root.Op.Type)
	}
	if root.LHS.Family != ScalarFamily || root.LHS.Scalar == nil {
		return errors.Errorf("root node %d assigns into a %s, want a scalar", s.Root, root.LHS.Family)
	}

	visited := make([]bool, len(s.Nodes))
	var walk func(idx int) error
	walk = func(idx int) error {
		if idx < 0 || idx >= len(s.Nodes) {
			return errors.Errorf("node index %d out of range [0, %d)", idx, len(s.Nodes))
		}
		if visited[idx] {
			return errors.Errorf("node %d is referenced more than once", idx)
		}
		visited[idx] = true

		n := s.Nodes[idx]
		for _, op := range []Operand{n.LHS, n.RHS} {
			if err := checkOperand(idx, op); err != nil {
				return err
			}
			if op.Family == CompositeFamily {
				if err := walk(op.Node); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(s.Root)
}

func checkOperand(idx int, op Operand) error {
	switch op.Family {
	case VectorFamily:
		if op.Vector == nil {
			return errors.Errorf("node %d: vector operand without handle", idx)
		}
	case ScalarFamily:
		if op.Scalar == nil {
			return errors.Errorf("node %d: scalar operand without handle", idx)
		}
	case MatrixFamily:
		return errors.Errorf("node %d: matrix operands are not supported", idx)
	}
	return nil
}
