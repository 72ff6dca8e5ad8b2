package reduce_test

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/born-ml/reducejit/reduce"
)

func Example() {
	dev := reduce.NewHostDevice()
	a, err := dev.NewVector("a", reduce.Float32, []float64{1, 2, 3, 4})
	if err != nil {
		log.Fatal(err)
	}
	b, err := dev.NewVector("b", reduce.Float32, []float64{4, 3, 2, 1})
	if err != nil {
		log.Fatal(err)
	}
	s, err := dev.NewScalar("s", reduce.Float32)
	if err != nil {
		log.Fatal(err)
	}

	cfg := reduce.DefaultConfig()
	cfg.LocalSize = 4
	cfg.NumGroups = 2
	tpl, err := reduce.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	plan, err := tpl.Compile(reduce.Batch{reduce.Assign(s, reduce.Dot(reduce.V(a), reduce.V(b)))}, dev)
	if err != nil {
		log.Fatal(err)
	}
	defer plan.Release()

	values, err := reduce.Simulate(context.Background(), plan)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(values[0])
	fmt.Println(plan.Geometry(0).Global[0], plan.Geometry(1).Global[0])
	// Output:
	// 20
	// 8 4
}

func ExampleTemplate_Compile_unsupportedType() {
	dev := reduce.NewHostDevice()
	n, _ := dev.NewVector("n", reduce.Int32, []float64{1, 2})
	s, _ := dev.NewScalar("s", reduce.Float32)

	tpl, _ := reduce.New(reduce.DefaultConfig())
	_, err := tpl.Compile(reduce.Batch{reduce.Assign(s, reduce.Sum(reduce.V(n)))}, dev)
	fmt.Println(errors.Is(err, reduce.ErrUnsupportedType))
	// Output: true
}
