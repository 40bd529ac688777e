package bodkin

import (
	"sync"
	"time"

	"github.com/23skdu/longbow-bodkin/internal/metrics"
)

// Stream is an ordered asynchronous work queue. Launches enqueued on the
// same stream execute one at a time in submission order; distinct streams
// are independent. Enqueueing never blocks on kernel completion, so callers
// must Synchronize before reading outputs or reusing input buffers.
type Stream struct {
	mu      sync.Mutex
	work    *sync.Cond
	drained *sync.Cond
	queue   []func()
	running bool
	closed  bool
}

func newStream() *Stream {
	s := &Stream{}
	s.work = sync.NewCond(&s.mu)
	s.drained = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

func (s *Stream) loop() {
	s.mu.Lock()
	for {
		for len(s.queue) == 0 && !s.closed {
			s.work.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.drained.Broadcast()
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		s.running = true
		metrics.StreamQueueDepth.Dec()
		s.mu.Unlock()

		task()

		s.mu.Lock()
		s.running = false
		if len(s.queue) == 0 {
			s.drained.Broadcast()
		}
	}
}

func (s *Stream) enqueue(task func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		panic("bodkin: enqueue on closed stream")
	}
	s.queue = append(s.queue, task)
	metrics.StreamQueueDepth.Inc()
	s.work.Signal()
	s.mu.Unlock()
}

// Synchronize blocks until every previously enqueued task has completed.
func (s *Stream) Synchronize() {
	start := time.Now()
	s.mu.Lock()
	for len(s.queue) > 0 || s.running {
		s.drained.Wait()
	}
	s.mu.Unlock()
	metrics.RecordSyncWait(time.Since(start))
}

// close drains the queue, then stops the consumer goroutine.
func (s *Stream) close() {
	s.mu.Lock()
	s.closed = true
	s.work.Broadcast()
	for len(s.queue) > 0 || s.running {
		s.drained.Wait()
	}
	s.mu.Unlock()
}
