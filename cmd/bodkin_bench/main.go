package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	bodkin "github.com/23skdu/longbow-bodkin"
	"github.com/23skdu/longbow-bodkin/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	batches      = flag.Int("batches", 8, "Batch count")
	heads        = flag.Int("heads", 16, "Attention heads per batch")
	queryLen     = flag.Int("qlen", 128, "Query sequence length")
	keyLen       = flag.Int("klen", 1024, "Key sequence length (row width)")
	dtypeName    = flag.String("dtype", "float32", "Element type (float32 or float16)")
	scale        = flag.Float64("scale", 0.125, "Pre-softmax scale factor")
	maskDensity  = flag.Float64("mask-density", 0.25, "Fraction of key positions suppressed")
	iters        = flag.Int("iters", 50, "Timed iterations")
	warmup       = flag.Int("warmup", 5, "Untimed warmup iterations")
	runBackward  = flag.Bool("backward", false, "Benchmark the gradient kernel instead of the forward")
	outputFormat = flag.String("output", "text", "Output format (text or json)")
	metricsAddr  = flag.String("metrics", "", "Address to serve Prometheus metrics (empty disables)")
)

type Output struct {
	Kernel      string  `json:"kernel"`
	DType       string  `json:"dtype"`
	Rows        int     `json:"rows"`
	KeyLen      int     `json:"key_len"`
	Iters       int     `json:"iterations"`
	TotalSec    float64 `json:"total_duration_seconds"`
	LaunchMs    float64 `json:"avg_launch_ms"`
	RowsPerSec  float64 `json:"rows_per_sec"`
	ElemsPerSec float64 `json:"elements_per_sec"`
}

func parseDType(name string) (bodkin.DType, error) {
	switch name {
	case "float32":
		return bodkin.Float32, nil
	case "float16":
		return bodkin.Float16, nil
	}
	return 0, fmt.Errorf("unknown dtype %q", name)
}

func main() {
	flag.Parse()

	dtype, err := parseDType(*dtypeName)
	if err != nil {
		log.Fatalf("Invalid -dtype: %v", err)
	}
	rows := *batches * *heads * *queryLen
	if rows <= 0 || *keyLen <= 0 {
		fmt.Println("Error: all shape flags must be positive")
		flag.Usage()
		os.Exit(1)
	}

	fmt.Printf("=== Longbow-Bodkin Bench ===\n")
	fmt.Printf("Shape: [%d, %d, %d, %d] (%d rows of %d)\n", *batches, *heads, *queryLen, *keyLen, rows, *keyLen)
	fmt.Printf("DType: %s\n", dtype)

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, `{"status":"healthy"}`)
			})
			logger.Log.Info("Metrics serving", "address", *metricsAddr+"/metrics")
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logger.Log.Info("Metrics server error", "error", err)
			}
		}()
	}

	d, err := bodkin.New()
	if err != nil {
		log.Fatalf("Failed to initialize device: %v", err)
	}
	defer d.Close()

	src := bodkin.MakeBuffer(dtype, rows**keyLen)
	dst := bodkin.MakeBuffer(dtype, rows**keyLen)
	for i := 0; i < src.Len(); i++ {
		src.Set(i, (rand.Float32()-0.5)*16)
	}
	mask := make([]uint8, *queryLen**keyLen)
	for i := range mask {
		if rand.Float64() < *maskDensity {
			mask[i] = 1
		}
	}

	kernel := "forward"
	launch := func() error {
		return d.ScaledMaskedSoftmaxForward(nil, dst, src, mask, float32(*scale),
			*queryLen, *keyLen, *batches, *heads, 1)
	}
	if *runBackward {
		kernel = "backward"
		output := bodkin.MakeBuffer(dtype, rows**keyLen)
		if err := d.ScaledMaskedSoftmaxForward(nil, output, src, mask, float32(*scale),
			*queryLen, *keyLen, *batches, *heads, 1); err != nil {
			log.Fatalf("Forward for backward inputs failed: %v", err)
		}
		d.Synchronize()
		grad := bodkin.MakeBuffer(dtype, rows**keyLen)
		for i := 0; i < grad.Len(); i++ {
			grad.Set(i, rand.Float32()-0.5)
		}
		launch = func() error {
			return d.ScaledMaskedSoftmaxBackward(nil, dst, grad, output, float32(*scale),
				*queryLen, *keyLen, *batches, *heads)
		}
	}

	logger.Log.Info("Starting bench", "kernel", kernel, "iters", *iters, "warmup", *warmup)

	for i := 0; i < *warmup; i++ {
		if err := launch(); err != nil {
			log.Fatalf("Warmup launch failed: %v", err)
		}
	}
	d.Synchronize()

	start := time.Now()
	for i := 0; i < *iters; i++ {
		if err := launch(); err != nil {
			log.Fatalf("Launch failed: %v", err)
		}
	}
	d.Synchronize()
	total := time.Since(start)

	out := Output{
		Kernel:      kernel,
		DType:       dtype.String(),
		Rows:        rows,
		KeyLen:      *keyLen,
		Iters:       *iters,
		TotalSec:    total.Seconds(),
		LaunchMs:    total.Seconds() * 1000 / float64(*iters),
		RowsPerSec:  float64(rows**iters) / total.Seconds(),
		ElemsPerSec: float64(rows**keyLen**iters) / total.Seconds(),
	}

	if *outputFormat == "json" {
		jsonEnc := json.NewEncoder(os.Stdout)
		jsonEnc.Encode(out)
	} else {
		fmt.Printf("Kernel: %s\n", out.Kernel)
		fmt.Printf("Total: %.3fs for %d launches\n", out.TotalSec, out.Iters)
		fmt.Printf("Launch: %.3fms avg\n", out.LaunchMs)
		fmt.Printf("Throughput: %.0f rows/s, %.2fM elems/s\n", out.RowsPerSec, out.ElemsPerSec/1e6)
	}
}
