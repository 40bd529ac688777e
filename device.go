package bodkin

import (
	"fmt"
	"sync"

	"github.com/23skdu/longbow-bodkin/internal/config"
	"github.com/23skdu/longbow-bodkin/internal/logger"
	"github.com/23skdu/longbow-bodkin/internal/workers"
)

// Device owns the execution streams and the worker pool that launches fan
// out on. Settings come from BODKIN_* environment variables, overridden by
// options. Devices are safe for concurrent use.
type Device struct {
	maskValue float32
	pool      *workers.Pool

	mu      sync.Mutex
	def     *Stream
	streams []*Stream
	closed  bool
}

// New builds a Device with a default stream.
func New(opts ...Option) (*Device, error) {
	cfg := config.FromEnv()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bodkin: %w", err)
	}

	d := &Device{
		maskValue: cfg.MaskValue,
		pool:      workers.NewPool(cfg.MaxParallelism),
	}
	d.def = newStream()
	d.streams = []*Stream{d.def}
	logger.Log.Debug("device ready",
		"max_parallelism", d.pool.Max(),
		"mask_value", d.maskValue)
	return d, nil
}

// DefaultStream returns the stream used when a launch passes a nil stream.
func (d *Device) DefaultStream() *Stream {
	return d.def
}

// NewStream adds an independent execution stream to the device.
func (d *Device) NewStream() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := newStream()
	d.streams = append(d.streams, s)
	return s
}

// MaskValue reports the masking surrogate launches on this device stage at
// suppressed positions.
func (d *Device) MaskValue() float32 {
	return d.maskValue
}

// Synchronize blocks until every stream on the device drains.
func (d *Device) Synchronize() {
	for _, s := range d.snapshot() {
		s.Synchronize()
	}
}

// Close drains and stops every stream. Launching on a closed device panics.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	streams := append([]*Stream(nil), d.streams...)
	d.mu.Unlock()
	for _, s := range streams {
		s.close()
	}
}

func (d *Device) snapshot() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Stream(nil), d.streams...)
}

func (d *Device) resolve(s *Stream) *Stream {
	if s == nil {
		return d.def
	}
	return s
}
