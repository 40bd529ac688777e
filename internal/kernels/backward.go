package kernels

import (
	"math"
	"sync/atomic"

	"github.com/23skdu/longbow-bodkin/internal/reduce"
	"github.com/23skdu/longbow-bodkin/internal/workers"
)

// BackwardFloat32 computes the softmax vector-Jacobian product row by row:
// gradInput[i] = scale * (grad[i]*output[i] - output[i] * sum(grad*output)).
// output must be the forward result, grad the upstream gradient. The same
// scale that multiplied raw scores in the forward pass is reapplied here.
// The return value counts rows whose dot product was not finite.
func BackwardFloat32(gradInput, grad, output []float32, scale float32, keyLen, rows int, pool *workers.Pool) int {
	var unstable int64
	pool.ParallelFor(rows, func(lo, hi int) {
		s := getScratch()
		defer putScratch(s)
		vals := s.vals[:keyLen]
		for row := lo; row < hi; row++ {
			gradRow := grad[row*keyLen : (row+1)*keyLen]
			outRow := output[row*keyLen : (row+1)*keyLen]
			for i := range vals {
				vals[i] = gradRow[i] * outRow[i]
			}
			dot := reduce.Block(vals, &s.partials, reduce.Sum[float32], 0)
			if f := float64(dot); math.IsNaN(f) || math.IsInf(f, 0) {
				atomic.AddInt64(&unstable, 1)
			}
			giRow := gradInput[row*keyLen : (row+1)*keyLen]
			for i := range giRow {
				giRow[i] = scale * (vals[i] - outRow[i]*dot)
			}
		}
	})
	return int(atomic.LoadInt64(&unstable))
}
