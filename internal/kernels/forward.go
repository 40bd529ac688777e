// Package kernels holds the fused softmax row kernels. Each kernel assigns
// one independent row job per (batch, head, query position) triple and fans
// the jobs out over a worker pool; rows never share mutable state. Inputs
// stage through a fixed-capacity float32 arena regardless of element type,
// so half precision inputs accumulate in single precision.
package kernels

import (
	"math"
	"sync/atomic"

	"github.com/23skdu/longbow-bodkin/internal/reduce"
	"github.com/23skdu/longbow-bodkin/internal/workers"
)

// maskOffset locates the mask row for a row job. A mask built with
// padBatches == 1 carries one row per query position, broadcast across
// batches and heads; otherwise it carries one row per (batch, query) pair.
func maskOffset(row, queryLen, heads, keyLen, padBatches int) int {
	queryID := row % queryLen
	if padBatches == 1 {
		return queryID * keyLen
	}
	maskBatch := row / heads / queryLen
	return (maskBatch*queryLen + queryID) * keyLen
}

// ForwardFloat32 computes softmax(scale*src, mask) row by row into dst.
// Mask bytes equal to 1 suppress a position by staging maskValue in place
// of the scaled score. Columns past keyLen are never written. The return
// value counts rows whose normalization was not finite, which only happens
// when the input itself carries NaN or Inf.
func ForwardFloat32(dst, src []float32, mask []uint8, scale, maskValue float32, queryLen, heads, keyLen, padBatches, rows int, pool *workers.Pool) int {
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
					vals[i] = srcRow[i] * scale
				}
			}
			rowSum := normalizeStaged(vals, s, maskValue)
			if !isFinitePositive(rowSum) {
				atomic.AddInt64(&unstable, 1)
			}
			dstRow := dst[row*keyLen : (row+1)*keyLen]
			for i := range dstRow {
				dstRow[i] = vals[i] / rowSum
			}
		}
	})
	return int(atomic.LoadInt64(&unstable))
}

// normalizeStaged runs the stability passes shared by every forward
// instantiation: reduce-max over the staged row, exponentiate in place with
// the max subtracted, then reduce-sum for the denominator. Out of range
// lanes are seeded with the masking surrogate for the max pass and zero for
// the sum pass.
func normalizeStaged(vals []float32, s *scratch, maskValue float32) float32 {
	rowMax := reduce.Block(vals, &s.partials, reduce.Max[float32], maskValue)
	for i := range vals {
		vals[i] = float32(math.Exp(float64(vals[i] - rowMax)))
	}
	return reduce.Block(vals, &s.partials, reduce.Sum[float32], 0)
}

func isFinitePositive(v float32) bool {
	f := float64(v)
	return v > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}
