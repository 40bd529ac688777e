package kernels

import (
	"math"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/float16"

	"github.com/23skdu/longbow-bodkin/internal/reduce"
	"github.com/23skdu/longbow-bodkin/internal/workers"
)

// BackwardFloat16 is the half precision instantiation of the backward
// kernel. grad and output widen once into the staging arenas so the dot
// product and the Jacobian-vector product both accumulate in float32.
func BackwardFloat16(gradInput, grad, output []float16.Num, scale float32, keyLen, rows int, pool *workers.Pool) int {
	var unstable int64
	pool.ParallelFor(rows, func(lo, hi int) {
		s := getScratch()
		defer putScratch(s)
		vals := s.vals[:keyLen]
		outs := s.aux[:keyLen]
		for row := lo; row < hi; row++ {
			gradRow := grad[row*keyLen : (row+1)*keyLen]
			outRow := output[row*keyLen : (row+1)*keyLen]
			for i := range vals {
				outs[i] = outRow[i].Float32()
				vals[i] = gradRow[i].Float32() * outs[i]
			}
			dot := reduce.Block(vals, &s.partials, reduce.Sum[float32], 0)
			if f := float64(dot); math.IsNaN(f) || math.IsInf(f, 0) {
				atomic.AddInt64(&unstable, 1)
			}
			giRow := gradInput[row*keyLen : (row+1)*keyLen]
			for i := range giRow {
				giRow[i] = float16.New(scale * (vals[i] - outs[i]*dot))
			}
		}
	})
	return int(atomic.LoadInt64(&unstable))
}
