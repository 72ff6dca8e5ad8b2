// Package kernel provides a structured intermediate representation for
// generated compute kernels and the source dialects that render it.
//
// Generators build a Kernel made of parameters, work-group shared arrays
// and a Block of statements with explicit scopes. A Dialect turns the tree
// into source text, so generated structure can be inspected in tests
// without matching strings.
package kernel

import "github.com/born-ml/reducejit/internal/expr"

// Type is an element type with an optional SIMD width.
type Type struct {
	Scalar expr.DataType
	Width  int // 0 or 1 means scalar
}

// Scalar returns the scalar Type for dt.
func Scalar(dt expr.DataType) Type {
	return Type{Scalar: dt, Width: 1}
}

// Vec returns a Type of width lanes.
func Vec(dt expr.DataType, width int) Type {
	return Type{Scalar: dt, Width: width}
}

// Index is the unsigned type used for loop counters and sizes.
var Index = Scalar(expr.Uint32)

// Lanes returns the SIMD width, treating zero as one.
func (t Type) Lanes() int {
	if t.Width <= 1 {
		return 1
	}
	return t.Width
}

// ParamKind tells how a parameter is passed.
type ParamKind int

const (
	// ParamBuffer is a pointer to global device memory.
	ParamBuffer ParamKind = iota
	// ParamValue is a by-value 32-bit unsigned integer.
	ParamValue
)

// Param is a kernel parameter. The parameter's position is its argument index.
type Param struct {
	Name string
	Type Type
	Kind ParamKind
}

// Shared is a work-group local array.
type Shared struct {
	Name string
	Type Type
	Len  int
}

// Kernel is a complete kernel ready to be rendered by a Dialect.
type Kernel struct {
	Name      string
	LocalSize [3]int
	Params    []Param
	Shared    []Shared
	Body      Block
}

// Stmt is a statement of a Block.
type Stmt interface {
	stmt()
}

// Decl declares a variable. Const declarations are never reassigned.
type Decl struct {
	Type  Type
	Name  string
	Init  string
	Const bool
}

// Assign stores RHS into LHS.
type Assign struct {
	LHS string
	RHS string
}

// Raw is a complete statement rendered verbatim, followed by a terminator.
type Raw struct {
	Text string
}

// Barrier synchronizes every work-item of a work-group on local memory.
type Barrier struct{}

// For is a counted loop: for Var = Init; Var < Bound; Var += Step.
type For struct {
	Var   string
	Init  string
	Bound string
	Step  string
	Body  Block
}

// If runs Body when Cond holds.
type If struct {
	Cond string
	Body Block
}

func (*Decl) stmt()    {}
func (*Assign) stmt()  {}
func (*Raw) stmt()     {}
func (*Barrier) stmt() {}
func (*For) stmt()     {}
func (*If) stmt()      {}

// Block is an ordered list of statements forming one scope.
type Block struct {
	Stmts []Stmt
}

// Add appends statements to the block.
func (b *Block) Add(s ...Stmt) {
	b.Stmts = append(b.Stmts, s...)
}

// Declare appends a mutable variable declaration.
func (b *Block) Declare(t Type, name, init string) {
	b.Add(&Decl{Type: t, Name: name, Init: init})
}

// Let appends a declaration that is never reassigned.
func (b *Block) Let(t Type, name, init string) {
	b.Add(&Decl{Type: t, Name: name, Init: init, Const: true})
}

// Assign appends lhs = rhs.
func (b *Block) Assign(lhs, rhs string) {
	b.Add(&Assign{LHS: lhs, RHS: rhs})
}

// Barrier appends a local-memory barrier.
func (b *Block) Barrier() {
	b.Add(&Barrier{})
}

// For appends a loop and returns its body for filling.
func (b *Block) For(v, init, bound, step string) *Block {
	f := &For{Var: v, Init: init, Bound: bound, Step: step}
	b.Add(f)
	return &f.Body
}

// If appends a conditional and returns its body for filling.
func (b *Block) If(cond string) *Block {
	i := &If{Cond: cond}
	b.Add(i)
	return &i.Body
}

// Walk calls fn for every statement of the block in order, descending into
// nested scopes after visiting their owner.
func (b *Block) Walk(fn func(s Stmt, depth int)) {
	b.walk(fn, 0)
}

func (b *Block) walk(fn func(s Stmt, depth int), depth int) {
	for _, s := range b.Stmts {
		fn(s, depth)
		switch n := s.(type) {
		case *For:
			n.Body.walk(fn, depth+1)
		case *If:
			n.Body.walk(fn, depth+1)
		}
	}
}
