package kernel

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/reducejit/internal/expr"
	"github.com/pkg/errors"
)

// Builtin names a work-item query.
type Builtin int

// Work-item queries along the primary dimension.
const (
	LocalID Builtin = iota
	GroupID
	NumGroups
	GlobalID
	GlobalSize
	LocalSize
)

// Dialect renders kernels and expression fragments in one source language.
type Dialect interface {
	// Name returns the dialect identifier ("opencl", "wgsl").
	Name() string

	// Supports reports whether dt can be used as a kernel element type.
	Supports(dt expr.DataType) bool

	// MaxWidth returns the largest supported SIMD width.
	MaxWidth() int

	// MaxLocalSize returns the largest work-group size, or 0 when unbounded.
	MaxLocalSize() int

	TypeName(t Type) string
	Literal(v float64, dt expr.DataType) string
	Uint(n int) string

	// Infinity returns the identity of min (negative=false) or max
	// (negative=true) for dt.
	Infinity(dt expr.DataType, negative bool) string

	Builtin(b Builtin) string

	// Lane selects one lane of a SIMD value.
	Lane(value string, lane int) string

	Min(a, b string, t Type) string
	Max(a, b string, t Type) string

	// Render produces the complete kernel source.
	Render(k *Kernel) (string, error)
}

// ByName returns the dialect registered under name.
func ByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "opencl", "cl", "":
		return OpenCL{}, nil
	case "wgsl", "webgpu":
		return WGSL{}, nil
	default:
		return nil, errors.Errorf("unknown dialect %q", name)
	}
}

// checkTypes verifies that every parameter and shared array can be
// expressed in the dialect.
func checkTypes(d Dialect, k *Kernel) error {
	check := func(what, name string, t Type) error {
		if !d.Supports(t.Scalar) {
			return errors.Errorf("%s: %s %q has unsupported type %s", d.Name(), what, name, t.Scalar)
		}
		if t.Lanes() > d.MaxWidth() {
			return errors.Errorf("%s: %s %q has width %d, max %d", d.Name(), what, name, t.Lanes(), d.MaxWidth())
		}
		return nil
	}
	for _, p := range k.Params {
		if err := check("param", p.Name, p.Type); err != nil {
			return err
		}
	}
	for _, s := range k.Shared {
		if err := check("shared array", s.Name, s.Type); err != nil {
			return err
		}
	}
	if m := d.MaxLocalSize(); m > 0 && k.LocalSize[0]*max(k.LocalSize[1], 1)*max(k.LocalSize[2], 1) > m {
		return errors.Errorf("%s: work-group size %v exceeds %d", d.Name(), k.LocalSize, m)
	}
	return nil
}

// writer accumulates indented source lines.
type writer struct {
	buf    bytes.Buffer
	indent int
}

func (w *writer) linef(format string, args ...any) {
	for i := 0; i < w.indent; i++ {
		w.buf.WriteString("    ")
	}
	fmt.Fprintf(&w.buf, format, args...)
	w.buf.WriteByte('\n')
}

func (w *writer) String() string {
	return w.buf.String()
}

// syntax renders the statement forms that differ between dialects.
type syntax interface {
	decl(d *Decl) string
	loop(f *For) string
	branch(i *If) string
	barrier() string
}

func renderBlock(w *writer, s syntax, b *Block) {
	for _, st := range b.Stmts {
		switch n := st.(type) {
		case *Decl:
			w.linef("%s", s.decl(n))
		case *Assign:
			w.linef("%s = %s;", n.LHS, n.RHS)
		case *Raw:
			w.linef("%s;", n.Text)
		case *Barrier:
			w.linef("%s", s.barrier())
		case *For:
			w.linef("%s", s.loop(n))
			w.indent++
			renderBlock(w, s, &n.Body)
			w.indent--
			w.linef("}")
		case *If:
			w.linef("%s", s.branch(n))
			w.indent++
			renderBlock(w, s, &n.Body)
			w.indent--
			w.linef("}")
		}
	}
}

// formatFloat renders v with the shortest representation for bits and
// guarantees a decimal point or exponent.
func formatFloat(v float64, bits int) string {
	s := strconv.FormatFloat(v, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
