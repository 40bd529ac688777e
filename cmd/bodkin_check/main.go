package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"

	bodkin "github.com/23skdu/longbow-bodkin"
	"github.com/23skdu/longbow-bodkin/internal/refmath"
)

var (
	seed    = flag.Int64("seed", 1, "RNG seed for reproducible sweeps")
	density = flag.Float64("mask-density", 0.25, "Fraction of key positions suppressed")
)

type sweepCase struct {
	batches, heads, queryLen, keyLen, padBatches int
	scale                                        float32
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	fmt.Printf("=== Longbow-Bodkin Check ===\n")
	fmt.Printf("Seed: %d\n\n", *seed)

	d, err := bodkin.New()
	if err != nil {
		fmt.Printf("Device creation failed: %v\n", err)
		os.Exit(1)
	}
	defer d.Close()

	cases := []sweepCase{
		{1, 1, 1, 1, 1, 1.0},
		{1, 1, 1, 8, 1, 1.0},
		{2, 3, 4, 33, 2, 0.125},
		{1, 2, 16, 128, 1, 0.25},
		{3, 1, 5, 257, 3, 1.0},
		{2, 2, 7, 1000, 1, 0.0625},
		{1, 1, 2, 4096, 1, 0.5},
	}

	failures := 0
	for _, c := range cases {
		for _, dtype := range []bodkin.DType{bodkin.Float32, bodkin.Float16} {
			report("forward", c, dtype, checkForward(d, c, dtype, rng), &failures)
			report("backward", c, dtype, checkBackward(d, c, dtype, rng), &failures)
		}
	}

	if failures > 0 {
		fmt.Printf("\n%d checks failed\n", failures)
		os.Exit(1)
	}
	fmt.Printf("\nAll checks passed\n")
}

func report(kernel string, c sweepCase, dtype bodkin.DType, err error, failures *int) {
	shape := fmt.Sprintf("[%d, %d, %d, %d]", c.batches, c.heads, c.queryLen, c.keyLen)
	if err != nil {
		fmt.Printf("FAIL %-8s %-7s %-18s %v\n", kernel, dtype, shape, err)
		*failures++
		return
	}
	fmt.Printf("PASS %-8s %-7s %s\n", kernel, dtype, shape)
}

func randomInputs(c sweepCase, dtype bodkin.DType, rng *rand.Rand) (bodkin.Buffer, []uint8) {
	rows := c.batches * c.heads * c.queryLen
	src := bodkin.MakeBuffer(dtype, rows*c.keyLen)
	for i := 0; i < src.Len(); i++ {
		src.Set(i, (rng.Float32()-0.5)*12)
	}
	mask := make([]uint8, c.padBatches*c.queryLen*c.keyLen)
	for i := range mask {
		if rng.Float64() < *density {
			mask[i] = 1
		}
	}
	return src, mask
}

func checkForward(d *bodkin.Device, c sweepCase, dtype bodkin.DType, rng *rand.Rand) error {
	rows := c.batches * c.heads * c.queryLen
	src, mask := randomInputs(c, dtype, rng)
	dst := bodkin.MakeBuffer(dtype, rows*c.keyLen)
	if err := d.ScaledMaskedSoftmaxForward(nil, dst, src, mask, c.scale,
		c.queryLen, c.keyLen, c.batches, c.heads, c.padBatches); err != nil {
		return err
	}
	d.Synchronize()

	srcRef := make([]float64, src.Len())
	for i := range srcRef {
		srcRef[i] = float64(src.At(i))
	}
	want := make([]float64, src.Len())
	refmath.Forward(want, srcRef, mask, float64(c.scale), float64(d.MaskValue()),
		c.queryLen, c.heads, c.keyLen, c.padBatches, rows)

	tol := 1e-5
	if dtype == bodkin.Float16 {
		tol = 2e-3
	}
	return compare(dst, want, tol)
}

func checkBackward(d *bodkin.Device, c sweepCase, dtype bodkin.DType, rng *rand.Rand) error {
	rows := c.batches * c.heads * c.queryLen
	src, mask := randomInputs(c, dtype, rng)
	output := bodkin.MakeBuffer(dtype, rows*c.keyLen)
	if err := d.ScaledMaskedSoftmaxForward(nil, output, src, mask, c.scale,
		c.queryLen, c.keyLen, c.batches, c.heads, c.padBatches); err != nil {
		return err
	}

	grad := bodkin.MakeBuffer(dtype, rows*c.keyLen)
	for i := 0; i < grad.Len(); i++ {
		grad.Set(i, rng.Float32()-0.5)
	}
	gradInput := bodkin.MakeBuffer(dtype, rows*c.keyLen)
	if err := d.ScaledMaskedSoftmaxBackward(nil, gradInput, grad, output, c.scale,
		c.queryLen, c.keyLen, c.batches, c.heads); err != nil {
		return err
	}
	d.Synchronize()

	gradRef := make([]float64, grad.Len())
	outRef := make([]float64, output.Len())
	for i := range gradRef {
		gradRef[i] = float64(grad.At(i))
		outRef[i] = float64(output.At(i))
	}
	want := make([]float64, gradInput.Len())
	refmath.Backward(want, gradRef, outRef, float64(c.scale), c.keyLen, rows)

	tol := 1e-5
	if dtype == bodkin.Float16 {
		tol = 1e-2
	}
	return compare(gradInput, want, tol)
}

func compare(got bodkin.Buffer, want []float64, tol float64) error {
	worst, worstIdx := 0.0, -1
	for i := range want {
		if diff := math.Abs(float64(got.At(i)) - want[i]); diff > worst {
			worst, worstIdx = diff, i
		}
	}
	if worst > tol {
		return fmt.Errorf("max diff %g at index %d (tolerance %g)", worst, worstIdx, tol)
	}
	return nil
}
