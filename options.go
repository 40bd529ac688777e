package bodkin

import "github.com/23skdu/longbow-bodkin/internal/config"

// Option overrides one environment-derived setting on a new Device.
type Option func(*config.Config)

// WithMaskValue sets the negative surrogate staged at suppressed positions.
// It must be finite and at most -1000; New rejects anything shallower
// because exp would no longer underflow it to zero.
func WithMaskValue(v float32) Option {
	return func(c *config.Config) { c.MaskValue = v }
}

// WithMaxParallelism bounds the worker goroutines one launch may fan out
// to. Zero selects runtime.NumCPU.
func WithMaxParallelism(n int) Option {
	return func(c *config.Config) { c.MaxParallelism = n }
}
