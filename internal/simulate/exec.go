package simulate

import (
	"go/ast"
	"go/token"

	"github.com/born-ml/reducejit/internal/device/host"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/pkg/errors"
)

// Compiled statements. Expressions are parsed once per kernel.
type (
	stmt any

	declStmt struct {
		t    kernel.Type
		name string
		init ast.Expr // nil declares a zero value
	}

	assignStmt struct {
		lhs ast.Expr
		tok token.Token
		rhs ast.Expr
	}

	forStmt struct {
		v                 string
		init, bound, step ast.Expr
		body              []stmt
	}

	ifStmt struct {
		cond ast.Expr
		body []stmt
	}
)

// param is a bound kernel argument.
type param struct {
	p   kernel.Param
	buf *host.Buffer // nil for value params
	val value
}

func (p *param) get(i int) (value, error) {
	w := p.p.Type.Lanes()
	if i < 0 || (i+1)*w > p.buf.Len(p.p.Type.Scalar) {
		return value{}, errors.Errorf("%s read at %d past its end", p.p.Name, i)
	}
	v := value{k: kindOf(p.p.Type.Scalar), n: w}
	for a := 0; a < w; a++ {
		v.lanes[a] = p.buf.Float(i*w+a, p.p.Type.Scalar)
	}
	return v, nil
}

func (p *param) set(i int, v value) error {
	w := p.p.Type.Lanes()
	if i < 0 || (i+1)*w > p.buf.Len(p.p.Type.Scalar) {
		return errors.Errorf("%s written at %d past its end", p.p.Name, i)
	}
	v = convert(v, p.p.Type)
	for a := 0; a < w; a++ {
		p.buf.SetFloat(i*w+a, p.p.Type.Scalar, v.lanes[a])
	}
	return nil
}

// array is work-group local memory.
type array struct {
	t    kernel.Type
	data []float64
}

func (a *array) get(name string, i int) (value, error) {
	w := a.t.Lanes()
	if i < 0 || (i+1)*w > len(a.data) {
		return value{}, errors.Errorf("%s read at %d out of range", name, i)
	}
	v := value{k: kindOf(a.t.Scalar), n: w}
	copy(v.lanes[:w], a.data[i*w:])
	return v, nil
}

func (a *array) set(name string, i int, v value) error {
	w := a.t.Lanes()
	if i < 0 || (i+1)*w > len(a.data) {
		return errors.Errorf("%s written at %d out of range", name, i)
	}
	v = convert(v, a.t)
	copy(a.data[i*w:], v.lanes[:w])
	return nil
}

// executor runs one kernel bound to a host kernel. It is safe to run
// distinct work-groups concurrently as long as they write disjoint memory.
type executor struct {
	k      *kernel.Kernel
	phases [][]stmt // body split at top-level barriers
	params map[string]*param
	local  int
	groups int
}

func newExecutor(k *kernel.Kernel, hk *host.Kernel) (*executor, error) {
	geo := hk.Geometry()
	x := &executor{
		k:      k,
		params: make(map[string]*param, len(k.Params)),
		local:  geo.Local[0],
		groups: geo.NumGroups(),
	}
	if k.LocalSize[0] != x.local {
		return nil, errors.Errorf("compiled for local size %d, launched with %d", k.LocalSize[0], x.local)
	}
	if x.local <= 0 || x.groups <= 0 {
		return nil, errors.Errorf("launched with %d work-groups of %d", x.groups, x.local)
	}

	for i, p := range k.Params {
		arg, ok := hk.Arg(i)
		if !ok {
			return nil, errors.Errorf("argument %d (%s) is unbound", i, p.Name)
		}
		switch p.Kind {
		case kernel.ParamValue:
			if arg.IsBuffer() {
				return nil, errors.Errorf("argument %d (%s) is %s, want a value", i, p.Name, arg)
			}
			x.params[p.Name] = &param{p: p, val: scalar(integer, float64(arg.Value))}
		default:
			buf, ok := arg.Buffer.(*host.Buffer)
			if !ok {
				return nil, errors.Errorf("argument %d (%s) is %s, not a host buffer", i, p.Name, arg)
			}
			x.params[p.Name] = &param{p: p, buf: buf}
		}
	}

	x.phases = [][]stmt{nil}
	for _, s := range k.Body.Stmts {
		if _, ok := s.(*kernel.Barrier); ok {
			x.phases = append(x.phases, nil)
			continue
		}
		c, err := compileStmt(s)
		if err != nil {
			return nil, err
		}
		last := len(x.phases) - 1
		x.phases[last] = append(x.phases[last], c)
	}
	return x, nil
}

func compileBlock(b *kernel.Block) ([]stmt, error) {
	out := make([]stmt, 0, len(b.Stmts))
	for _, s := range b.Stmts {
		c, err := compileStmt(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func compileStmt(s kernel.Stmt) (stmt, error) {
	switch s := s.(type) {
	case *kernel.Decl:
		d := &declStmt{t: s.Type, name: s.Name}
		if s.Init != "" {
			e, err := parseExpr(s.Init)
			if err != nil {
				return nil, err
			}
			d.init = e
		}
		return d, nil

	case *kernel.Assign:
		lhs, err := parseExpr(s.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := parseExpr(s.RHS)
		if err != nil {
			return nil, err
		}
		return &assignStmt{lhs: lhs, tok: token.ASSIGN, rhs: rhs}, nil

	case *kernel.Raw:
		a, err := parseAssign(s.Text)
		if err != nil {
			return nil, err
		}
		return &assignStmt{lhs: a.Lhs[0], tok: a.Tok, rhs: a.Rhs[0]}, nil

	case *kernel.For:
		f := &forStmt{v: s.Var}
		var err error
		for _, p := range []struct {
			dst *ast.Expr
			src string
		}{{&f.init, s.Init}, {&f.bound, s.Bound}, {&f.step, s.Step}} {
			if *p.dst, err = parseExpr(p.src); err != nil {
				return nil, err
			}
		}
		if f.body, err = compileBlock(&s.Body); err != nil {
			return nil, err
		}
		return f, nil

	case *kernel.If:
		cond, err := parseExpr(s.Cond)
		if err != nil {
			return nil, err
		}
		body, err := compileBlock(&s.Body)
		if err != nil {
			return nil, err
		}
		return &ifStmt{cond: cond, body: body}, nil

	case *kernel.Barrier:
		return nil, errors.New("barrier inside control flow")

	default:
		return nil, errors.Errorf("unsupported statement %T", s)
	}
}

// group is the state of one work-group.
type group struct {
	x      *executor
	id     int
	shared map[string]*array
}

// local is a private variable of a work-item.
type local struct {
	t kernel.Type
	v value
}

// item is one work-item.
type item struct {
	g      *group
	lid    int
	locals map[string]local
}

// run executes work-group id. Work-items run one after another between
// barriers, which is a valid schedule for barrier-synchronized kernels.
func (x *executor) run(id int) (*group, error) {
	g := &group{x: x, id: id, shared: make(map[string]*array, len(x.k.Shared))}
	for _, s := range x.k.Shared {
		g.shared[s.Name] = &array{t: s.Type, data: make([]float64, s.Len*s.Type.Lanes())}
	}

	items := make([]*item, x.local)
	for lid := range items {
		items[lid] = &item{g: g, lid: lid, locals: make(map[string]local)}
	}
	for _, phase := range x.phases {
		for _, it := range items {
			if err := it.exec(phase); err != nil {
				return nil, errors.Wrapf(err, "work-group %d, work-item %d", id, it.lid)
			}
		}
	}
	return g, nil
}

func (it *item) exec(stmts []stmt) error {
	for _, s := range stmts {
		var err error
		switch s := s.(type) {
		case *declStmt:
			err = it.declare(s)
		case *assignStmt:
			err = it.assign(s)
		case *forStmt:
			err = it.loop(s)
		case *ifStmt:
			var c value
			if c, err = it.eval(s.cond); err == nil && c.truth() {
				err = it.exec(s.body)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (it *item) declare(s *declStmt) error {
	var v value
	if s.init != nil {
		var err error
		if v, err = it.eval(s.init); err != nil {
			return errors.Wrapf(err, "declare %s", s.name)
		}
	}
	it.locals[s.name] = local{t: s.t, v: convert(v, s.t)}
	return nil
}

func (it *item) assign(s *assignStmt) error {
	v, err := it.eval(s.rhs)
	if err != nil {
		return err
	}
	if op := compound(s.tok); op != token.ILLEGAL {
		cur, err := it.eval(s.lhs)
		if err != nil {
			return err
		}
		if v, err = arith(op, cur, v); err != nil {
			return err
		}
	}
	return it.store(s.lhs, v)
}

func compound(tok token.Token) token.Token {
	switch tok {
	case token.ADD_ASSIGN:
		return token.ADD
	case token.SUB_ASSIGN:
		return token.SUB
	case token.MUL_ASSIGN:
		return token.MUL
	default:
		return token.ILLEGAL
	}
}

func (it *item) loop(s *forStmt) error {
	init, err := it.eval(s.init)
	if err != nil {
		return err
	}
	it.locals[s.v] = local{t: kernel.Index, v: convert(init, kernel.Index)}
	for {
		bound, err := it.eval(s.bound)
		if err != nil {
			return err
		}
		if it.locals[s.v].v.lanes[0] >= bound.lanes[0] {
			return nil
		}
		if err := it.exec(s.body); err != nil {
			return err
		}
		step, err := it.eval(s.step)
		if err != nil {
			return err
		}
		if step.lanes[0] <= 0 {
			return errors.Errorf("loop over %s does not advance", s.v)
		}
		l := it.locals[s.v]
		l.v.lanes[0] += step.lanes[0]
		it.locals[s.v] = l
	}
}
