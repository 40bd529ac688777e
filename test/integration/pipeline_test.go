package integration

import (
	"math"
	"math/rand"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"

	bodkin "github.com/23skdu/longbow-bodkin"
	"github.com/23skdu/longbow-bodkin/arrowio"
	"github.com/23skdu/longbow-bodkin/internal/refmath"
)

// Runs the full interchange path: scores enter as an Arrow record, flow
// through forward and backward launches on one stream, and the gradients are
// checked against a serial double-precision reference.
func TestRecordThroughDevicePipeline(t *testing.T) {
	const (
		batches, heads, queryLen, keyLen = 2, 3, 5, 96
		rows                             = batches * heads * queryLen
		scale                            = 0.25
	)
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rng := rand.New(rand.NewSource(7))
	values := make([]float32, rows*keyLen)
	for i := range values {
		values[i] = (rng.Float32() - 0.5) * 12
	}
	rec, err := arrowio.NewRecord(arrowio.Tensor{
		Batches:  batches,
		Heads:    heads,
		QueryLen: queryLen,
		KeyLen:   keyLen,
		Values:   bodkin.NewFloat32Buffer(values),
	}, mem)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	defer rec.Release()

	maskBytes, err := bodkin.CausalMask(queryLen, keyLen)
	if err != nil {
		t.Fatalf("CausalMask: %v", err)
	}
	maskRec, err := arrowio.NewMaskRecord(maskBytes, 1, queryLen, keyLen, mem)
	if err != nil {
		t.Fatalf("NewMaskRecord: %v", err)
	}
	defer maskRec.Release()

	in, err := arrowio.TensorFromRecord(rec)
	if err != nil {
		t.Fatalf("TensorFromRecord: %v", err)
	}
	mask, padBatches, mq, mk, err := arrowio.MaskFromRecord(maskRec)
	if err != nil {
		t.Fatalf("MaskFromRecord: %v", err)
	}
	if mq != queryLen || mk != keyLen {
		t.Fatalf("mask shape [%d, %d], want [%d, %d]", mq, mk, queryLen, keyLen)
	}

	d, err := bodkin.New(bodkin.WithMaxParallelism(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()
	s := d.NewStream()

	output := bodkin.MakeBuffer(bodkin.Float32, rows*keyLen)
	if err := d.ScaledMaskedSoftmaxForward(s, output, in.Values, mask, scale,
		in.QueryLen, in.KeyLen, in.Batches, in.Heads, padBatches); err != nil {
		t.Fatalf("forward: %v", err)
	}

	grad := bodkin.MakeBuffer(bodkin.Float32, rows*keyLen)
	for i := 0; i < grad.Len(); i++ {
		grad.Set(i, rng.Float32()-0.5)
	}
	gradInput := bodkin.MakeBuffer(bodkin.Float32, rows*keyLen)
	if err := d.ScaledMaskedSoftmaxBackward(s, gradInput, grad, output, scale,
		in.QueryLen, in.KeyLen, in.Batches, in.Heads); err != nil {
		t.Fatalf("backward: %v", err)
	}
	s.Synchronize()

	srcRef := make([]float64, rows*keyLen)
	for i := range srcRef {
		srcRef[i] = float64(values[i])
	}
	wantOut := make([]float64, rows*keyLen)
	refmath.Forward(wantOut, srcRef, mask, scale, float64(d.MaskValue()),
		queryLen, heads, keyLen, padBatches, rows)
	for i := range wantOut {
		if diff := math.Abs(float64(output.At(i)) - wantOut[i]); diff > 1e-5 {
			t.Fatalf("output[%d] = %v, want %v", i, output.At(i), wantOut[i])
		}
	}

	gradRef := make([]float64, rows*keyLen)
	outRef := make([]float64, rows*keyLen)
	for i := range gradRef {
		gradRef[i] = float64(grad.At(i))
		outRef[i] = float64(output.At(i))
	}
	wantGrad := make([]float64, rows*keyLen)
	refmath.Backward(wantGrad, gradRef, outRef, scale, keyLen, rows)
	for i := range wantGrad {
		if diff := math.Abs(float64(gradInput.At(i)) - wantGrad[i]); diff > 1e-5 {
			t.Fatalf("gradInput[%d] = %v, want %v", i, gradInput.At(i), wantGrad[i])
		}
	}

	// Results leave the same way they came in.
	outRec, err := arrowio.NewRecord(arrowio.Tensor{
		Batches:  batches,
		Heads:    heads,
		QueryLen: queryLen,
		KeyLen:   keyLen,
		Values:   output,
	}, mem)
	if err != nil {
		t.Fatalf("NewRecord(output): %v", err)
	}
	outRec.Release()
}
