package kernels

import (
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/float16"

	"github.com/23skdu/longbow-bodkin/internal/workers"
)

// ForwardFloat16 is the half precision instantiation of the forward kernel.
// Elements widen to float32 as they stage, every reduction and the
// exponentiation run in float32, and only the final normalized values narrow
// back to half.
func ForwardFloat16(dst, src []float16.Num, mask []uint8, scale, maskValue float32, queryLen, heads, keyLen, padBatches, rows int, pool *workers.Pool) int {
	var unstable int64
	pool.ParallelFor(rows, func(lo, hi int) {
		s := getScratch()
		defer putScratch(s)
		vals := s.vals[:keyLen]
		for row := lo; row < hi; row++ {
			srcRow := src[row*keyLen : (row+1)*keyLen]
			moff := maskOffset(row, queryLen, heads, keyLen, padBatches)
			maskRow := mask[moff : moff+keyLen]
			for i := range vals {
				if maskRow[i] == 1 {
					vals[i] = maskValue
				} else {
					vals[i] = srcRow[i].Float32() * scale
				}
			}
			rowSum := normalizeStaged(vals, s, maskValue)
			if !isFinitePositive(rowSum) {
				atomic.AddInt64(&unstable, 1)
			}
			dstRow := dst[row*keyLen : (row+1)*keyLen]
			for i := range dstRow {
				dstRow[i] = float16.New(vals[i] / rowSum)
			}
		}
	})
	return int(atomic.LoadInt64(&unstable))
}
