// Generates synthetic attention score tensors (and optionally masks) as
// Arrow IPC streams, for feeding interchange paths without a real model run.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	bodkin "github.com/23skdu/longbow-bodkin"
	"github.com/23skdu/longbow-bodkin/arrowio"
)

var (
	out       = flag.String("out", "scores.arrows", "Output path for the score stream")
	maskOut   = flag.String("mask-out", "", "Optional output path for a causal mask stream")
	batches   = flag.Int("batches", 2, "Batch count")
	heads     = flag.Int("heads", 4, "Attention heads per batch")
	queryLen  = flag.Int("qlen", 16, "Query sequence length")
	keyLen    = flag.Int("klen", 64, "Key sequence length")
	dtypeName = flag.String("dtype", "float32", "Element type (float32 or float16)")
	seed      = flag.Int64("seed", 1, "RNG seed")
	spread    = flag.Float64("spread", 8, "Scores drawn uniform from [-spread, spread)")
)

func main() {
	flag.Parse()

	var dtype bodkin.DType
	switch *dtypeName {
	case "float32":
		dtype = bodkin.Float32
	case "float16":
		dtype = bodkin.Float16
	default:
		log.Fatalf("Unknown -dtype %q", *dtypeName)
	}

	rng := rand.New(rand.NewSource(*seed))
	mem := memory.NewGoAllocator()

	rows := *batches * *heads * *queryLen
	values := bodkin.MakeBuffer(dtype, rows**keyLen)
	for i := 0; i < values.Len(); i++ {
		values.Set(i, (rng.Float32()-0.5)*2*float32(*spread))
	}

	rec, err := arrowio.NewRecord(arrowio.Tensor{
		Batches:  *batches,
		Heads:    *heads,
		QueryLen: *queryLen,
		KeyLen:   *keyLen,
		Values:   values,
	}, mem)
	if err != nil {
		log.Fatalf("Failed to build score record: %v", err)
	}
	defer rec.Release()

	if err := writeStream(*out, rec); err != nil {
		log.Fatalf("Failed to write %s: %v", *out, err)
	}
	fmt.Printf("Wrote %d rows of %d (%s) to %s\n", rows, *keyLen, dtype, *out)

	if *maskOut != "" {
		mask, err := bodkin.CausalMask(*queryLen, *keyLen)
		if err != nil {
			log.Fatalf("CausalMask failed: %v", err)
		}
		maskRec, err := arrowio.NewMaskRecord(mask, 1, *queryLen, *keyLen, mem)
		if err != nil {
			log.Fatalf("Failed to build mask record: %v", err)
		}
		defer maskRec.Release()
		if err := writeStream(*maskOut, maskRec); err != nil {
			log.Fatalf("Failed to write %s: %v", *maskOut, err)
		}
		fmt.Printf("Wrote causal mask [1, %d, %d] to %s\n", *queryLen, *keyLen, *maskOut)
	}
}

func writeStream(path string, rec arrow.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := ipc.NewWriter(f, ipc.WithSchema(rec.Schema()))
	if err := w.Write(rec); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
