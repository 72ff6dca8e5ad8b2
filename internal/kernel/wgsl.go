package kernel

import (
	"fmt"
	"math"
	"strconv"

	"github.com/born-ml/reducejit/internal/expr"
)

// wgslMaxInvocations is the default maxComputeInvocationsPerWorkgroup limit.
const wgslMaxInvocations = 256

// WGSL renders WebGPU compute shaders.
//
// Buffer params become read_write storage arrays and value params become
// per-binding uniform structs, so a param's position is also its binding.
// The entry point is always "main".
type WGSL struct{}

// Name implements Dialect.
func (WGSL) Name() string { return "wgsl" }

// Supports implements Dialect. WGSL core has no 64-bit floats.
func (WGSL) Supports(dt expr.DataType) bool {
	switch dt {
	case expr.Float32, expr.Int32, expr.Uint32:
		return true
	default:
		return false
	}
}

// MaxWidth implements Dialect.
func (WGSL) MaxWidth() int { return 4 }

// MaxLocalSize implements Dialect.
func (WGSL) MaxLocalSize() int { return wgslMaxInvocations }

// TypeName implements Dialect.
func (WGSL) TypeName(t Type) string {
	var name string
	switch t.Scalar {
	case expr.Float32:
		name = "f32"
	case expr.Float64:
		name = "f64"
	case expr.Int32:
		name = "i32"
	case expr.Uint32:
		name = "u32"
	case expr.Bool:
		name = "bool"
	default:
		name = "invalid"
	}
	if t.Lanes() > 1 {
		return fmt.Sprintf("vec%d<%s>", t.Lanes(), name)
	}
	return name
}

// Literal implements Dialect.
func (d WGSL) Literal(v float64, dt expr.DataType) string {
	switch dt {
	case expr.Float32, expr.Float64:
		if math.IsInf(v, 0) {
			return d.Infinity(dt, v < 0)
		}
		return formatFloat(v, 32)
	case expr.Uint32:
		return strconv.FormatUint(uint64(v), 10) + "u"
	default:
		return strconv.FormatInt(int64(v), 10) + "i"
	}
}

// Uint implements Dialect.
func (WGSL) Uint(n int) string { return strconv.Itoa(n) + "u" }

// Infinity implements Dialect. WGSL has no infinity literal, so the
// largest finite value stands in for it.
func (WGSL) Infinity(_ expr.DataType, negative bool) string {
	s := strconv.FormatFloat(math.MaxFloat32, 'e', -1, 64)
	if negative {
		return "-" + s
	}
	return s
}

// Builtin implements Dialect.
func (WGSL) Builtin(b Builtin) string {
	switch b {
	case LocalID:
		return "local_id.x"
	case GroupID:
		return "group_id.x"
	case NumGroups:
		return "num_groups.x"
	case GlobalID:
		return "global_id.x"
	case GlobalSize:
		return "(num_groups.x * WG_SIZE)"
	case LocalSize:
		return "WG_SIZE"
	default:
		panic(fmt.Sprintf("wgsl: unknown builtin %d", b))
	}
}

// Lane implements Dialect.
func (WGSL) Lane(value string, lane int) string {
	return fmt.Sprintf("%s[%d]", value, lane)
}

// Min implements Dialect.
func (WGSL) Min(a, b string, _ Type) string { return "min(" + a + ", " + b + ")" }

// Max implements Dialect.
func (WGSL) Max(a, b string, _ Type) string { return "max(" + a + ", " + b + ")" }

// Render implements Dialect.
func (d WGSL) Render(k *Kernel) (string, error) {
	if err := checkTypes(d, k); err != nil {
		return "", err
	}

	w := &writer{}
	w.linef("// %s", k.Name)
	for i, p := range k.Params {
		switch p.Kind {
		case ParamBuffer:
			w.linef("@group(0) @binding(%d) var<storage, read_write> %s: array<%s>;", i, p.Name, d.TypeName(p.Type))
		case ParamValue:
			w.linef("struct %s_t {", p.Name)
			w.linef("    value: %s,", d.TypeName(p.Type))
			w.linef("}")
			w.linef("@group(0) @binding(%d) var<uniform> %s_u: %s_t;", i, p.Name, p.Name)
		}
	}
	for _, s := range k.Shared {
		w.linef("var<workgroup> %s: array<%s, %d>;", s.Name, d.TypeName(s.Type), s.Len)
	}

	ls := k.LocalSize
	w.linef("const WG_SIZE: u32 = %du;", ls[0])
	w.linef("")
	w.linef("@compute @workgroup_size(%d, %d, %d)", ls[0], max(ls[1], 1), max(ls[2], 1))
	w.linef("fn main(")
	w.indent++
	w.linef("@builtin(local_invocation_id) local_id: vec3<u32>,")
	w.linef("@builtin(global_invocation_id) global_id: vec3<u32>,")
	w.linef("@builtin(workgroup_id) group_id: vec3<u32>,")
	w.linef("@builtin(num_workgroups) num_groups: vec3<u32>,")
	w.indent--
	w.linef(") {")
	w.indent++
	for _, p := range k.Params {
		if p.Kind == ParamValue {
			w.linef("let %s: %s = %s_u.value;", p.Name, d.TypeName(p.Type), p.Name)
		}
	}
	renderBlock(w, wgslSyntax{d}, &k.Body)
	w.indent--
	w.linef("}")

	return w.String(), nil
}

type wgslSyntax struct {
	d WGSL
}

func (s wgslSyntax) decl(n *Decl) string {
	kw := "var"
	if n.Const {
		kw = "let"
	}
	return fmt.Sprintf("%s %s: %s = %s;", kw, n.Name, s.d.TypeName(n.Type), n.Init)
}

func (wgslSyntax) loop(f *For) string {
	return fmt.Sprintf("for (var %s: u32 = %s; %s < %s; %s += %s) {",
		f.Var, f.Init, f.Var, f.Bound, f.Var, f.Step)
}

func (wgslSyntax) branch(i *If) string {
	return "if (" + i.Cond + ") {"
}

func (wgslSyntax) barrier() string {
	return "workgroupBarrier();"
}
