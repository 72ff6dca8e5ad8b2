package simulate

import (
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/pkg/errors"
)

// Kernel text is a C-like subset whose operators and precedence match Go,
// so it is parsed with go/parser once literal suffixes are rewritten:
// 2.0f becomes float(2.0), 1u and 1i become 1.
var (
	floatSuffix   = regexp.MustCompile(`\b(\d+(?:\.\d*)?(?:[eE][+-]?\d+)?)f\b`)
	integerSuffix = regexp.MustCompile(`\b(\d+)[ui]\b`)
)

func goSyntax(src string) string {
	return integerSuffix.ReplaceAllString(floatSuffix.ReplaceAllString(src, "float($1)"), "$1")
}

func parseExpr(src string) (ast.Expr, error) {
	e, err := parser.ParseExpr(goSyntax(src))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", src)
	}
	return e, nil
}

// parseAssign parses a complete assignment such as "scal0[0] += buf0[0]".
func parseAssign(src string) (*ast.AssignStmt, error) {
	file := "package p\nfunc f() {\n" + goSyntax(src) + "\n}\n"
	f, err := parser.ParseFile(token.NewFileSet(), "", file, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", src)
	}
	body := f.Decls[0].(*ast.FuncDecl).Body.List
	if len(body) != 1 {
		return nil, errors.Errorf("parse %q: want one statement, got %d", src, len(body))
	}
	a, ok := body[0].(*ast.AssignStmt)
	if !ok || len(a.Lhs) != 1 || len(a.Rhs) != 1 {
		return nil, errors.Errorf("parse %q: not a single assignment", src)
	}
	switch a.Tok {
	case token.ASSIGN, token.ADD_ASSIGN, token.SUB_ASSIGN, token.MUL_ASSIGN:
		return a, nil
	default:
		return nil, errors.Errorf("parse %q: unsupported operator %s", src, a.Tok)
	}
}

// kind is the arithmetic class of a value.
type kind int

const (
	untyped kind = iota // float literal without a suffix
	integer
	f32
	f64
)

func kindOf(dt expr.DataType) kind {
	switch dt {
	case expr.Float32:
		return f32
	case expr.Float64:
		return f64
	default:
		return integer
	}
}

// join returns the class of a binary result. Untyped literals adopt the
// other operand's float type; doubles win over floats.
func join(a, b kind) kind {
	switch {
	case a == b:
		return a
	case a == f64 || b == f64:
		return f64
	case a == f32 || b == f32:
		return f32
	default:
		return untyped
	}
}

// fit rounds x to the precision of k.
func fit(k kind, x float64) float64 {
	switch k {
	case f32:
		return float64(float32(x))
	case integer:
		return math.Trunc(x)
	default:
		return x
	}
}

const maxLanes = 16

// value is an evaluated expression with one element per SIMD lane.
type value struct {
	k     kind
	n     int
	lanes [maxLanes]float64
}

func scalar(k kind, x float64) value {
	v := value{k: k, n: 1}
	v.lanes[0] = x
	return v
}

func (v value) lane(a int) float64 {
	if v.n == 1 {
		return v.lanes[0]
	}
	return v.lanes[a]
}

func (v value) extract(a int) (value, error) {
	if a < 0 || a >= max(v.n, 1) {
		return value{}, errors.Errorf("lane %d of a %d-lane value", a, v.n)
	}
	return scalar(v.k, v.lanes[a]), nil
}

func (v value) truth() bool { return v.lanes[0] != 0 }

// convert stores v into a variable of type t.
func convert(v value, t kernel.Type) value {
	out := value{k: kindOf(t.Scalar), n: t.Lanes()}
	for a := 0; a < out.n; a++ {
		out.lanes[a] = fit(out.k, v.lane(a))
	}
	return out
}

func lanewise(a, b value, k kind, f func(x, y float64) (float64, error)) (value, error) {
	if a.n != b.n && a.n != 1 && b.n != 1 {
		return value{}, errors.Errorf("lane count mismatch: %d and %d", a.n, b.n)
	}
	out := value{k: k, n: max(a.n, b.n)}
	for i := 0; i < out.n; i++ {
		r, err := f(a.lane(i), b.lane(i))
		if err != nil {
			return value{}, err
		}
		out.lanes[i] = fit(k, r)
	}
	return out, nil
}

func arith(op token.Token, a, b value) (value, error) {
	k := join(a.k, b.k)
	switch op {
	case token.ADD:
		return lanewise(a, b, k, func(x, y float64) (float64, error) { return x + y, nil })
	case token.SUB:
		return lanewise(a, b, k, func(x, y float64) (float64, error) { return x - y, nil })
	case token.MUL:
		return lanewise(a, b, k, func(x, y float64) (float64, error) { return x * y, nil })
	case token.QUO:
		return lanewise(a, b, k, func(x, y float64) (float64, error) {
			if k == integer && y == 0 {
				return 0, errors.New("integer division by zero")
			}
			return x / y, nil
		})
	case token.LSS, token.LEQ, token.GTR, token.GEQ, token.EQL, token.NEQ:
		return lanewise(a, b, integer, func(x, y float64) (float64, error) {
			return bool2f(compare(op, x, y)), nil
		})
	default:
		return value{}, errors.Errorf("unsupported operator %s", op)
	}
}

func compare(op token.Token, x, y float64) bool {
	switch op {
	case token.LSS:
		return x < y
	case token.LEQ:
		return x <= y
	case token.GTR:
		return x > y
	case token.GEQ:
		return x >= y
	case token.EQL:
		return x == y
	default:
		return x != y
	}
}

func bool2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// laneIndex resolves a component selector: x, y, z, w or OpenCL's s0..sf.
func laneIndex(sel string) (int, error) {
	if i := strings.Index("xyzw", sel); len(sel) == 1 && i >= 0 {
		return i, nil
	}
	if len(sel) == 2 && sel[0] == 's' {
		i, err := strconv.ParseUint(sel[1:], 16, 8)
		if err == nil {
			return int(i), nil
		}
	}
	return 0, errors.Errorf("unknown component %q", sel)
}

// eval evaluates e for work-item it.
func (it *item) eval(e ast.Expr) (value, error) {
	switch e := e.(type) {
	case *ast.BasicLit:
		x, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return value{}, errors.Wrapf(err, "literal %s", e.Value)
		}
		if e.Kind == token.INT {
			return scalar(integer, x), nil
		}
		return scalar(untyped, x), nil

	case *ast.ParenExpr:
		return it.eval(e.X)

	case *ast.UnaryExpr:
		x, err := it.eval(e.X)
		if err != nil {
			return value{}, err
		}
		if e.Op != token.SUB {
			return value{}, errors.Errorf("unsupported unary %s", e.Op)
		}
		for a := 0; a < x.n; a++ {
			x.lanes[a] = -x.lanes[a]
		}
		return x, nil

	case *ast.BinaryExpr:
		a, err := it.eval(e.X)
		if err != nil {
			return value{}, err
		}
		b, err := it.eval(e.Y)
		if err != nil {
			return value{}, err
		}
		return arith(e.Op, a, b)

	case *ast.Ident:
		return it.lookup(e.Name)

	case *ast.SelectorExpr:
		x, err := it.eval(e.X)
		if err != nil {
			return value{}, err
		}
		a, err := laneIndex(e.Sel.Name)
		if err != nil {
			return value{}, err
		}
		return x.extract(a)

	case *ast.IndexExpr:
		name, i, err := it.subscript(e)
		if err != nil {
			return value{}, err
		}
		return it.load(name, i)

	case *ast.CallExpr:
		return it.call(e)

	default:
		return value{}, errors.Errorf("unsupported expression %T", e)
	}
}

func (it *item) lookup(name string) (value, error) {
	if l, ok := it.locals[name]; ok {
		return l.v, nil
	}
	if v, ok := it.builtin(name); ok {
		return v, nil
	}
	if p, ok := it.g.x.params[name]; ok && p.buf == nil {
		return p.val, nil
	}
	return value{}, errors.Errorf("undefined identifier %q", name)
}

// builtin resolves work-item builtins by their OpenCL function name or
// WGSL variable name.
func (it *item) builtin(name string) (value, bool) {
	x := it.g.x
	switch name {
	case "local_id", "get_local_id":
		return scalar(integer, float64(it.lid)), true
	case "group_id", "get_group_id":
		return scalar(integer, float64(it.g.id)), true
	case "num_groups", "get_num_groups":
		return scalar(integer, float64(x.groups)), true
	case "global_id", "get_global_id":
		return scalar(integer, float64(it.g.id*x.local+it.lid)), true
	case "get_global_size":
		return scalar(integer, float64(x.groups*x.local)), true
	case "WG_SIZE", "get_local_size":
		return scalar(integer, float64(x.local)), true
	case "INFINITY":
		return scalar(f32, math.Inf(1)), true
	default:
		return value{}, false
	}
}

func (it *item) call(e *ast.CallExpr) (value, error) {
	fn, ok := e.Fun.(*ast.Ident)
	if !ok {
		return value{}, errors.Errorf("unsupported call target %T", e.Fun)
	}
	args := make([]value, len(e.Args))
	for i, a := range e.Args {
		v, err := it.eval(a)
		if err != nil {
			return value{}, err
		}
		args[i] = v
	}

	switch fn.Name {
	case "float":
		if len(args) != 1 {
			return value{}, errors.Errorf("float takes 1 argument, got %d", len(args))
		}
		return convert(args[0], kernel.Vec(expr.Float32, args[0].n)), nil
	case "min", "fmin", "max", "fmax":
		if len(args) != 2 {
			return value{}, errors.Errorf("%s takes 2 arguments, got %d", fn.Name, len(args))
		}
		pick := math.Min
		if strings.HasSuffix(fn.Name, "max") {
			pick = math.Max
		}
		return lanewise(args[0], args[1], join(args[0].k, args[1].k), func(x, y float64) (float64, error) {
			return pick(x, y), nil
		})
	}
	if strings.HasPrefix(fn.Name, "get_") {
		if len(args) != 1 || args[0].lanes[0] != 0 {
			return value{}, errors.Errorf("%s supports dimension 0 only", fn.Name)
		}
		if v, ok := it.builtin(fn.Name); ok {
			return v, nil
		}
	}
	return value{}, errors.Errorf("unknown function %q", fn.Name)
}

// subscript returns the array name and the element index of e.
func (it *item) subscript(e *ast.IndexExpr) (string, int, error) {
	base, ok := e.X.(*ast.Ident)
	if !ok {
		return "", 0, errors.Errorf("unsupported indexed expression %T", e.X)
	}
	idx, err := it.eval(e.Index)
	if err != nil {
		return "", 0, err
	}
	if idx.k != integer || idx.n != 1 {
		return "", 0, errors.Errorf("%s indexed with a non-integer", base.Name)
	}
	return base.Name, int(idx.lanes[0]), nil
}

// load reads element i of an array. Indexing a private vector selects a
// lane, as WGSL does.
func (it *item) load(name string, i int) (value, error) {
	if l, ok := it.locals[name]; ok {
		return l.v.extract(i)
	}
	if a, ok := it.g.shared[name]; ok {
		return a.get(name, i)
	}
	if p, ok := it.g.x.params[name]; ok && p.buf != nil {
		return p.get(i)
	}
	return value{}, errors.Errorf("undefined array %q", name)
}

// store assigns v to the location named by lhs.
func (it *item) store(lhs ast.Expr, v value) error {
	switch lhs := lhs.(type) {
	case *ast.Ident:
		l, ok := it.locals[lhs.Name]
		if !ok {
			return errors.Errorf("assignment to undeclared %q", lhs.Name)
		}
		l.v = convert(v, l.t)
		it.locals[lhs.Name] = l
		return nil
	case *ast.IndexExpr:
		name, i, err := it.subscript(lhs)
		if err != nil {
			return err
		}
		if a, ok := it.g.shared[name]; ok {
			return a.set(name, i, v)
		}
		if p, ok := it.g.x.params[name]; ok && p.buf != nil {
			return p.set(i, v)
		}
		return errors.Errorf("assignment to undefined array %q", name)
	default:
		return errors.Errorf("unsupported assignment target %T", lhs)
	}
}
