// Command reducejit generates the two kernels of a scalar reduction,
// prints them and optionally runs them.
//
// Usage:
//
//	reducejit -op sum -n 4096 -local 128 -groups 32
//	reducejit -op dot -dialect wgsl -simd 4 -run host -v
//	reducejit -op max -decomp block -run webgpu        # windows only
//
// The input vectors hold a deterministic ramp so results can be compared
// against the reference value printed next to them.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
	"github.com/born-ml/reducejit/internal/reduction"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

type options struct {
	op      string
	n       int
	dtype   string
	local   int
	groups  int
	simd    int
	decomp  string
	dialect string
	run     string
	verbose bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("reducejit", flag.ContinueOnError)
	fs.StringVar(&o.op, "op", "sum", "Reduction: sum, prod, min, max or dot")
	fs.IntVar(&o.n, "n", 1024, "Number of elements")
	fs.StringVar(&o.dtype, "type", "float32", "Element type: float32 or float64")
	fs.IntVar(&o.local, "local", 128, "Work-items per work-group (power of two)")
	fs.IntVar(&o.groups, "groups", 64, "Work-groups of the first stage")
	fs.IntVar(&o.simd, "simd", 1, "SIMD width (1, 2, 4, 8, 16)")
	fs.StringVar(&o.decomp, "decomp", "strided", "Decomposition: strided or block")
	fs.StringVar(&o.dialect, "dialect", "", "Kernel language: opencl or wgsl (default opencl, wgsl with -run webgpu)")
	fs.StringVar(&o.run, "run", "none", "Execute on: none, host or webgpu")
	fs.BoolVar(&o.verbose, "v", false, "Log compilation details")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.n < 0 {
		return o, errors.Errorf("-n must not be negative, got %d", o.n)
	}
	if o.dialect == "" {
		o.dialect = "opencl"
		if o.run == "webgpu" {
			o.dialect = "wgsl"
		}
	}
	if o.run == "webgpu" && o.dialect != "wgsl" {
		return o, errors.Errorf("-run webgpu executes wgsl kernels, got -dialect %s", o.dialect)
	}
	return o, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(2)
	}
	if err := run(context.Background(), o, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, stdout, stderr io.Writer) error {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	dt, ok := expr.ParseDataType(o.dtype)
	if !ok {
		return errors.Errorf("unknown type %q", o.dtype)
	}
	dialect, err := kernel.ByName(o.dialect)
	if err != nil {
		return err
	}
	decomp, err := reduction.ParseDecomposition(o.decomp)
	if err != nil {
		return err
	}

	cfg := reduction.Config{
		SIMDWidth:     o.simd,
		LocalSize:     o.local,
		NumGroups:     o.groups,
		Decomposition: decomp,
		Dialect:       dialect,
		Logger:        logger,
	}
	tpl, err := reduction.New(cfg)
	if err != nil {
		return err
	}

	b, err := newBackend(o.run)
	if err != nil {
		return err
	}
	defer b.Release()

	xs, ys := inputs(o.op, o.n)
	x, err := b.NewVector("x", dt, xs)
	if err != nil {
		return err
	}
	defer x.Buffer.Release()
	y, err := b.NewVector("y", dt, ys)
	if err != nil {
		return err
	}
	defer y.Buffer.Release()
	s, err := b.NewScalar("s", dt)
	if err != nil {
		return err
	}
	defer s.Buffer.Release()

	e, want, err := statement(o.op, x, y, xs, ys)
	if err != nil {
		return err
	}

	plan, err := tpl.Compile(expr.Batch{expr.Assign(s, e)}, b)
	if err != nil {
		return err
	}
	defer plan.Release()

	if err := printPlan(stdout, plan); err != nil {
		return err
	}

	if o.run == "none" {
		return nil
	}
	if err := b.Launch(ctx, plan); err != nil {
		return err
	}
	got, err := b.ReadScalar(s)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "result:    %g\nreference: %g\n", got, want)
	return nil
}

// inputs returns a ramp around zero and a small periodic weight vector.
// Products get a ramp around one so they stay finite.
func inputs(op string, n int) (xs, ys []float64) {
	xs = make([]float64, n)
	ys = make([]float64, n)
	for i := range xs {
		xs[i] = float64(i%17) - 8 + 0.5
		if op == "prod" {
			xs[i] = 1 + xs[i]/64
		}
		ys[i] = 1 + float64(i%3)
	}
	return xs, ys
}

func statement(op string, x, y *expr.Vector, xs, ys []float64) (expr.Expr, float64, error) {
	switch op {
	case "sum":
		return expr.Sum(expr.V(x)), floats.Sum(xs), nil
	case "prod":
		return expr.Prod(expr.V(x)), floats.Prod(xs), nil
	case "min":
		if len(xs) == 0 {
			return expr.Min(expr.V(x)), 0, nil
		}
		return expr.Min(expr.V(x)), floats.Min(xs), nil
	case "max":
		if len(xs) == 0 {
			return expr.Max(expr.V(x)), 0, nil
		}
		return expr.Max(expr.V(x)), floats.Max(xs), nil
	case "dot":
		return expr.Dot(expr.V(x), expr.V(y)), floats.Dot(xs, ys), nil
	default:
		return expr.Expr{}, 0, errors.Errorf("unknown op %q", op)
	}
}

func printPlan(w io.Writer, p *reduction.Plan) error {
	args, err := p.Arguments()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "arguments:")
	for i, a := range args {
		fmt.Fprintf(w, "  %d %-6s %s\n", i, a.Param.Name, a.Arg)
	}
	for id := 0; id < reduction.NumKernels; id++ {
		g := p.Geometry(id)
		fmt.Fprintf(w, "\nkernel %d: global %d, local %d\n%s", id, g.Global[0], g.Local[0], p.Source(id))
	}
	return nil
}
