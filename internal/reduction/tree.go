package reduction

import (
	"github.com/born-ml/reducejit/internal/expr"
	"github.com/born-ml/reducejit/internal/kernel"
)

// TreeStrides returns the strides of an in-place halving reduction over
// size work-items: size/2, size/4, ..., 1.
func TreeStrides(size int) []int {
	var strides []int
	for s := size / 2; s > 0; s /= 2 {
		strides = append(strides, s)
	}
	return strides
}

// reduceLocal emits the barrier-separated tree reduction of every shared
// array so that element 0 ends up holding the work-group result.
func reduceLocal(b *kernel.Block, d kernel.Dialect, size int, bufs []string, ops []expr.OpType, types []kernel.Type) {
	for _, s := range TreeStrides(size) {
		b.Barrier()
		active := b.If("lid < " + d.Uint(s))
		for k, buf := range bufs {
			self := buf + "[lid]"
			other := buf + "[lid + " + d.Uint(s) + "]"
			active.Assign(self, combineText(d, ops[k], self, other, types[k]))
		}
	}
}
