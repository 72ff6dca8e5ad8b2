package expr

// Expr is an expression value used to build statements. Leaves wrap
// handles or literals; inner values carry an operator and one or two
// children.
type Expr struct {
	leaf *Operand
	op   Operator
	lhs  *Expr
	rhs  *Expr
}

// V wraps a vector handle.
func V(v *Vector) Expr {
	return Expr{leaf: &Operand{Family: VectorFamily, Type: v.Type, Vector: v}}
}

// S wraps a scalar handle.
func S(s *Scalar) Expr {
	return Expr{leaf: &Operand{Family: ScalarFamily, Type: s.Type, Scalar: s}}
}

// Const wraps a literal of the given type.
func Const(value float64, t DataType) Expr {
	return Expr{leaf: &Operand{Family: ConstantFamily, Type: t, Value: value}}
}

// Add returns a + b element-wise.
func Add(a, b Expr) Expr { return binary(OpAdd, a, b) }

// Sub returns a - b element-wise.
func Sub(a, b Expr) Expr { return binary(OpSub, a, b) }

// Mul returns a * b element-wise.
func Mul(a, b Expr) Expr { return binary(OpMul, a, b) }

// Div returns a / b element-wise.
func Div(a, b Expr) Expr { return binary(OpDiv, a, b) }

// Sum reduces a with addition.
func Sum(a Expr) Expr { return reduce(OpAdd, a) }

// Prod reduces a with multiplication.
func Prod(a Expr) Expr { return reduce(OpMul, a) }

// Min reduces a to its smallest element.
func Min(a Expr) Expr { return reduce(OpMin, a) }

// Max reduces a to its largest element.
func Max(a Expr) Expr { return reduce(OpMax, a) }

// Dot returns the inner product of a and b.
func Dot(a, b Expr) Expr {
	return Expr{op: Operator{Family: OpBinaryFamily, Type: OpInnerProd}, lhs: &a, rhs: &b}
}

// Assign builds the statement dst = e.
func Assign(dst *Scalar, e Expr) Statement {
	return assign(OpAssign, dst, e)
}

// AddAssign builds the statement dst += e.
func AddAssign(dst *Scalar, e Expr) Statement {
	return assign(OpInplaceAdd, dst, e)
}

// Type returns the element type of the expression.
func (e Expr) Type() DataType {
	if e.leaf != nil {
		return e.leaf.Type
	}
	if e.lhs.leaf != nil && e.lhs.leaf.Family == ConstantFamily && e.rhs != nil {
		return e.rhs.Type()
	}
	return e.lhs.Type()
}

func binary(t OpType, a, b Expr) Expr {
	return Expr{op: Operator{Family: OpBinaryFamily, Type: t}, lhs: &a, rhs: &b}
}

func reduce(t OpType, a Expr) Expr {
	return Expr{op: Operator{Family: OpReductionFamily, Type: t}, lhs: &a}
}

func assign(t OpType, dst *Scalar, e Expr) Statement {
	s := Statement{Nodes: []Node{{
		LHS: Operand{Family: ScalarFamily, Type: dst.Type, Scalar: dst},
		Op:  Operator{Family: OpAssignmentFamily, Type: t},
	}}}
	s.Nodes[0].RHS = s.flatten(e)
	return s
}

// flatten appends e's inner nodes in pre-order and returns the operand
// that refers to it.
func (s *Statement) flatten(e Expr) Operand {
	if e.leaf != nil {
		return *e.leaf
	}

	idx := len(s.Nodes)
	s.Nodes = append(s.Nodes, Node{Op: e.op})
	lhs := s.flatten(*e.lhs)
	rhs := Operand{Family: InvalidFamily}
	if e.rhs != nil {
		rhs = s.flatten(*e.rhs)
	}
	s.Nodes[idx].LHS = lhs
	s.Nodes[idx].RHS = rhs

	return Operand{Family: CompositeFamily, Type: e.Type(), Node: idx}
}
