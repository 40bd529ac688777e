// Package refmath holds single-threaded float64 references for the fused
// softmax kernels. Tests and the correctness checker compare kernel output
// against these; nothing here shares code with the kernels themselves.
package refmath

import "math"

// Forward computes softmax(scale*src, mask) row by row in float64.
func Forward(dst, src []float64, mask []uint8, scale, maskValue float64, queryLen, heads, keyLen, padBatches, rows int) {
	for row := 0; row < rows; row++ {
		queryID := row % queryLen
		var moff int
		if padBatches == 1 {
			moff = queryID * keyLen
		} else {
			maskBatch := row / heads / queryLen
			moff = (maskBatch*queryLen + queryID) * keyLen
		}

		staged := make([]float64, keyLen)
		for i := 0; i < keyLen; i++ {
			if mask[moff+i] == 1 {
				staged[i] = maskValue
			} else {
				staged[i] = src[row*keyLen+i] * scale
			}
		}
		rowMax := math.Inf(-1)
		for _, v := range staged {
			if v > rowMax {
				rowMax = v
			}
		}
		sum := 0.0
		for i, v := range staged {
			staged[i] = math.Exp(v - rowMax)
			sum += staged[i]
		}
		for i, v := range staged {
			dst[row*keyLen+i] = v / sum
		}
	}
}

// Backward computes scale * output * (grad - sum(grad*output)) row by row.
func Backward(gradInput, grad, output []float64, scale float64, keyLen, rows int) {
	for row := 0; row < rows; row++ {
		base := row * keyLen
		dot := 0.0
		for i := 0; i < keyLen; i++ {
			dot += grad[base+i] * output[base+i]
		}
		for i := 0; i < keyLen; i++ {
			gradInput[base+i] = scale * output[base+i] * (grad[base+i] - dot)
		}
	}
}
