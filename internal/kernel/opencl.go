package kernel

import (
	"fmt"
	"math"
	"strconv"

	"github.com/born-ml/reducejit/internal/expr"
)

// OpenCL renders OpenCL C kernels.
type OpenCL struct{}

// Name implements Dialect.
func (OpenCL) Name() string { return "opencl" }

// Supports implements Dialect.
func (OpenCL) Supports(dt expr.DataType) bool {
	switch dt {
	case expr.Float32, expr.Float64, expr.Int32, expr.Int64, expr.Uint32, expr.Uint8:
		return true
	default:
		return false
	}
}

// MaxWidth implements Dialect.
func (OpenCL) MaxWidth() int { return 16 }

// MaxLocalSize implements Dialect. The device limit is queried at launch.
func (OpenCL) MaxLocalSize() int { return 0 }

// TypeName implements Dialect.
func (OpenCL) TypeName(t Type) string {
	var name string
	switch t.Scalar {
	case expr.Float32:
		name = "float"
	case expr.Float64:
		name = "double"
	case expr.Int32:
		name = "int"
	case expr.Int64:
		name = "long"
	case expr.Uint8:
		name = "uchar"
	case expr.Uint32:
		if t.Lanes() == 1 {
			return "unsigned int"
		}
		name = "uint"
	case expr.Bool:
		name = "bool"
	default:
		name = "void"
	}
	if t.Lanes() > 1 {
		return name + strconv.Itoa(t.Lanes())
	}
	return name
}

// Literal implements Dialect.
func (d OpenCL) Literal(v float64, dt expr.DataType) string {
	switch dt {
	case expr.Float32:
		if math.IsInf(v, 0) {
			return d.Infinity(dt, v < 0)
		}
		return formatFloat(v, 32) + "f"
	case expr.Float64:
		if math.IsInf(v, 0) {
			return d.Infinity(dt, v < 0)
		}
		return formatFloat(v, 64)
	case expr.Uint32, expr.Uint8:
		return strconv.FormatUint(uint64(v), 10) + "u"
	default:
		return strconv.FormatInt(int64(v), 10)
	}
}

// Uint implements Dialect.
func (OpenCL) Uint(n int) string { return strconv.Itoa(n) }

// Infinity implements Dialect.
func (OpenCL) Infinity(_ expr.DataType, negative bool) string {
	if negative {
		return "-INFINITY"
	}
	return "INFINITY"
}

// Builtin implements Dialect.
func (OpenCL) Builtin(b Builtin) string {
	switch b {
	case LocalID:
		return "get_local_id(0)"
	case GroupID:
		return "get_group_id(0)"
	case NumGroups:
		return "get_num_groups(0)"
	case GlobalID:
		return "get_global_id(0)"
	case GlobalSize:
		return "get_global_size(0)"
	case LocalSize:
		return "get_local_size(0)"
	default:
		panic(fmt.Sprintf("opencl: unknown builtin %d", b))
	}
}

// Lane implements Dialect.
func (OpenCL) Lane(value string, lane int) string {
	return fmt.Sprintf("%s.s%x", value, lane)
}

// Min implements Dialect.
func (OpenCL) Min(a, b string, t Type) string {
	if t.Scalar.IsFloat() {
		return "fmin(" + a + ", " + b + ")"
	}
	return "min(" + a + ", " + b + ")"
}

// Max implements Dialect.
func (OpenCL) Max(a, b string, t Type) string {
	if t.Scalar.IsFloat() {
		return "fmax(" + a + ", " + b + ")"
	}
	return "max(" + a + ", " + b + ")"
}

// Render implements Dialect.
func (d OpenCL) Render(k *Kernel) (string, error) {
	if err := checkTypes(d, k); err != nil {
		return "", err
	}

	w := &writer{}
	if usesDouble(k) {
		w.linef("#pragma OPENCL EXTENSION cl_khr_fp64 : enable")
		w.linef("")
	}

	params := make([]string, len(k.Params))
	for i, p := range k.Params {
		switch p.Kind {
		case ParamBuffer:
			params[i] = fmt.Sprintf("__global %s* %s", d.TypeName(p.Type), p.Name)
		case ParamValue:
			params[i] = fmt.Sprintf("%s %s", d.TypeName(p.Type), p.Name)
		}
	}

	ls := k.LocalSize
	w.linef("__kernel void __attribute__((reqd_work_group_size(%d, %d, %d))) %s(",
		ls[0], max(ls[1], 1), max(ls[2], 1), k.Name)
	w.indent++
	for i, p := range params {
		sep := ","
		if i == len(params)-1 {
			sep = ")"
		}
		w.linef("%s%s", p, sep)
	}
	w.indent--
	if len(params) == 0 {
		w.linef(")")
	}
	w.linef("{")
	w.indent++
	for _, s := range k.Shared {
		w.linef("__local %s %s[%d];", d.TypeName(s.Type), s.Name, s.Len)
	}
	renderBlock(w, openclSyntax{d}, &k.Body)
	w.indent--
	w.linef("}")

	return w.String(), nil
}

type openclSyntax struct {
	d OpenCL
}

func (s openclSyntax) decl(n *Decl) string {
	prefix := ""
	if n.Const {
		prefix = "const "
	}
	return fmt.Sprintf("%s%s %s = %s;", prefix, s.d.TypeName(n.Type), n.Name, n.Init)
}

func (s openclSyntax) loop(f *For) string {
	return fmt.Sprintf("for (unsigned int %s = %s; %s < %s; %s += %s) {",
		f.Var, f.Init, f.Var, f.Bound, f.Var, f.Step)
}

func (openclSyntax) branch(i *If) string {
	return "if (" + i.Cond + ") {"
}

func (openclSyntax) barrier() string {
	return "barrier(CLK_LOCAL_MEM_FENCE);"
}

func usesDouble(k *Kernel) bool {
	found := false
	for _, p := range k.Params {
		found = found || p.Type.Scalar == expr.Float64
	}
	for _, s := range k.Shared {
		found = found || s.Type.Scalar == expr.Float64
	}
	k.Body.Walk(func(s Stmt, _ int) {
		if d, ok := s.(*Decl); ok && d.Type.Scalar == expr.Float64 {
			found = true
		}
	})
	return found
}
