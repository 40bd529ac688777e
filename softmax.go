// Package bodkin provides a fused, masked, scaled softmax and its gradient
// over 4-D attention score tensors laid out [batches, heads, query_len,
// key_len]. One independent row job runs per (batch, head, query position)
// triple; launches enqueue asynchronously on an execution stream and the
// caller synchronizes before reading results.
package bodkin

import (
	"fmt"
	"time"

	"github.com/23skdu/longbow-bodkin/internal/kernels"
	"github.com/23skdu/longbow-bodkin/internal/logger"
	"github.com/23skdu/longbow-bodkin/internal/metrics"
	"github.com/23skdu/longbow-bodkin/internal/workers"
)

// MaxRowLength is the largest supported key_len. It is fixed by the row
// staging capacity of the kernels.
const MaxRowLength = kernels.MaxRowLength

type forwardKernel func(dst, src Buffer, mask []uint8, scale, maskValue float32, queryLen, heads, keyLen, padBatches, rows int, pool *workers.Pool) int

type backwardKernel func(gradInput, grad, output Buffer, scale float32, keyLen, rows int, pool *workers.Pool) int

// kernelEntry binds the kernel instantiations for one element type. The
// table is built once at init and resolved once per launch.
type kernelEntry struct {
	forward  forwardKernel
	backward backwardKernel
}

var dtypeKernels [dtypeCount]kernelEntry

func init() {
	dtypeKernels[Float32] = kernelEntry{
		forward: func(dst, src Buffer, mask []uint8, scale, maskValue float32, queryLen, heads, keyLen, padBatches, rows int, pool *workers.Pool) int {
			return kernels.ForwardFloat32(dst.f32, src.f32, mask, scale, maskValue, queryLen, heads, keyLen, padBatches, rows, pool)
		},
		backward: func(gradInput, grad, output Buffer, scale float32, keyLen, rows int, pool *workers.Pool) int {
			return kernels.BackwardFloat32(gradInput.f32, grad.f32, output.f32, scale, keyLen, rows, pool)
		},
	}
	dtypeKernels[Float16] = kernelEntry{
		forward: func(dst, src Buffer, mask []uint8, scale, maskValue float32, queryLen, heads, keyLen, padBatches, rows int, pool *workers.Pool) int {
			return kernels.ForwardFloat16(dst.f16, src.f16, mask, scale, maskValue, queryLen, heads, keyLen, padBatches, rows, pool)
		},
		backward: func(gradInput, grad, output Buffer, scale float32, keyLen, rows int, pool *workers.Pool) int {
			return kernels.BackwardFloat16(gradInput.f16, grad.f16, output.f16, scale, keyLen, rows, pool)
		},
	}
}

// ScaledMaskedSoftmaxForward enqueues softmax(scale*src, mask) on stream
// and returns without waiting; a nil stream selects the device default.
// dst and src hold batches*heads*queryLen rows of keyLen columns. Mask
// bytes equal to 1 suppress a position. padBatches declares the mask
// layout: 1 means one mask row per query position broadcast across batches
// and heads, otherwise it must equal batches and the mask carries one row
// per (batch, query) pair.
//
// Masked positions are staged at the device mask value rather than negative
// infinity, so their outputs underflow toward zero without being exactly
// zero. A key_len of zero is a no-op. Rows whose every position is masked
// come out uniform.
func (d *Device) ScaledMaskedSoftmaxForward(stream *Stream, dst, src Buffer, mask []uint8, scale float32, queryLen, keyLen, batches, heads, padBatches int) error {
	const op = "softmax_forward"
	if keyLen < 0 || keyLen > MaxRowLength {
		return reject(op, "invalid_row_length",
			fmt.Errorf("%w: key_len %d not in [0, %d]", ErrInvalidRowLength, keyLen, MaxRowLength))
	}
	if keyLen == 0 {
		return nil
	}
	rows, err := checkGeometry(op, queryLen, batches, heads)
	if err != nil {
		return err
	}
	if padBatches != 1 && padBatches != batches {
		return reject(op, "bad_geometry",
			newValidationError(op, "pad_batches must be 1 or %d, got %d", batches, padBatches))
	}
	if err := checkPair(op, "dst", dst, "src", src, rows*keyLen); err != nil {
		return err
	}
	if want := padBatches * queryLen * keyLen; len(mask) != want {
		return reject(op, "shape_mismatch",
			newValidationError(op, "mask len %d, want %d", len(mask), want))
	}

	entry := dtypeKernels[src.DType()]
	dt := src.DType().String()
	maskValue := d.maskValue
	pool := d.pool
	metrics.RecordRowLength(keyLen)
	logger.Log.Debug("kernel launch",
		"kernel", op, "dtype", dt, "rows", rows, "key_len", keyLen, "pad_batches", padBatches)

	d.resolve(stream).enqueue(func() {
		start := time.Now()
		unstable := entry.forward(dst, src, mask, scale, maskValue, queryLen, heads, keyLen, padBatches, rows, pool)
		metrics.RecordKernelDuration(op, dt, time.Since(start))
		metrics.RecordRows(op, rows)
		metrics.RecordNumericalInstability(op, dt, unstable)
	})
	return nil
}

// ScaledMaskedSoftmaxBackward enqueues the softmax vector-Jacobian product
// gradInput = scale * output * (grad - sum(grad*output)) on stream and
// returns without waiting; a nil stream selects the device default. output
// must be the forward result, grad the upstream gradient, and scale the
// same scalar the forward launch used. A key_len of zero is a no-op.
func (d *Device) ScaledMaskedSoftmaxBackward(stream *Stream, gradInput, grad, output Buffer, scale float32, queryLen, keyLen, batches, heads int) error {
	const op = "softmax_backward"
	if keyLen < 0 || keyLen > MaxRowLength {
		return reject(op, "invalid_row_length",
			fmt.Errorf("%w: key_len %d not in [0, %d]", ErrInvalidRowLength, keyLen, MaxRowLength))
	}
	if keyLen == 0 {
		return nil
	}
	rows, err := checkGeometry(op, queryLen, batches, heads)
	if err != nil {
		return err
	}
	if err := checkPair(op, "grad_input", gradInput, "grad", grad, rows*keyLen); err != nil {
		return err
	}
	if output.DType() != grad.DType() {
		return reject(op, "dtype_mismatch",
			newValidationError(op, "output dtype %s != grad dtype %s", output.DType(), grad.DType()))
	}
	if output.Len() != rows*keyLen {
		return reject(op, "shape_mismatch",
			newValidationError(op, "output len %d, want %d", output.Len(), rows*keyLen))
	}

	entry := dtypeKernels[grad.DType()]
	dt := grad.DType().String()
	pool := d.pool
	metrics.RecordRowLength(keyLen)
	logger.Log.Debug("kernel launch",
		"kernel", op, "dtype", dt, "rows", rows, "key_len", keyLen)

	d.resolve(stream).enqueue(func() {
		start := time.Now()
		unstable := entry.backward(gradInput, grad, output, scale, keyLen, rows, pool)
		metrics.RecordKernelDuration(op, dt, time.Since(start))
		metrics.RecordRows(op, rows)
		metrics.RecordNumericalInstability(op, dt, unstable)
	})
	return nil
}

func checkGeometry(op string, queryLen, batches, heads int) (int, error) {
	if queryLen <= 0 || batches <= 0 || heads <= 0 {
		return 0, reject(op, "bad_geometry",
			newValidationError(op, "non-positive geometry: batches=%d heads=%d query_len=%d", batches, heads, queryLen))
	}
	return batches * heads * queryLen, nil
}

func checkPair(op, aName string, a Buffer, bName string, b Buffer, want int) error {
	if a.DType() != b.DType() {
		return reject(op, "dtype_mismatch",
			newValidationError(op, "%s dtype %s != %s dtype %s", aName, a.DType(), bName, b.DType()))
	}
	if a.Len() != want || b.Len() != want {
		return reject(op, "shape_mismatch",
			newValidationError(op, "%s len %d, %s len %d, want %d", aName, a.Len(), bName, b.Len(), want))
	}
	return nil
}

func reject(op, label string, err error) error {
	metrics.RecordValidationError(op, label)
	logger.Log.Warn("launch rejected", "operation", op, "reason", err.Error())
	return err
}
