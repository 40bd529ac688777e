// Package workers bounds the goroutine fan-out used when a kernel launch
// splits its row jobs across CPUs.
package workers

import (
	"runtime"
	"sync"
)

type Pool struct {
	max int
}

// NewPool returns a pool running at most max bodies concurrently. A max of
// zero or less selects runtime.NumCPU().
func NewPool(max int) *Pool {
	if max <= 0 {
		max = runtime.NumCPU()
	}
	return &Pool{max: max}
}

func (p *Pool) Max() int {
	return p.max
}

// ParallelFor splits [0, n) into contiguous chunks, one per worker, and
// runs body on each chunk. It returns once every chunk completes. With a
// single worker, or n of 1, body runs on the calling goroutine.
func (p *Pool) ParallelFor(n int, body func(lo, hi int)) {
	if n <= 0 {
		return
	}
	count := p.max
	if count > n {
		count = n
	}
	if count == 1 {
		body(0, n)
		return
	}
	chunk := (n + count - 1) / count
	var wg sync.WaitGroup
	for w := 0; w < count; w++ {
		lo := w * chunk
		if lo >= n {
			break
		}
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			body(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}
