package kernels

import (
	"sync"

	"github.com/23skdu/longbow-bodkin/internal/reduce"
)

// MaxRowLength is the staging capacity of one row job. The partials buffer
// fixes it: 128 slots filled by 32-wide groups cover 4096 elements.
const MaxRowLength = reduce.GroupWidth * reduce.PartialsSize

// scratch is the per-row-job staging arena. One worker borrows an arena for
// the rows of its chunk and returns it when the chunk drains; arenas never
// outlive a launch and are never shared between concurrent workers.
type scratch struct {
	vals     [MaxRowLength]float32
	aux      [MaxRowLength]float32
	partials [reduce.PartialsSize]float32
}

var scratchPool = sync.Pool{
	New: func() interface{} { return new(scratch) },
}

func getScratch() *scratch {
	return scratchPool.Get().(*scratch)
}

func putScratch(s *scratch) {
	scratchPool.Put(s)
}
