// Package config resolves the library's runtime settings from BODKIN_*
// environment variables. Callers can override any of them per device
// through options; the environment only supplies defaults.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
)

// DefaultMaskValue is the negative surrogate staged at suppressed
// positions. It substitutes for negative infinity so that subtracting the
// row max from an unmasked neighbor can never produce NaN.
const DefaultMaskValue = -10000.0

// MaskValueCeiling is the largest (least negative) surrogate accepted.
// Anything above it no longer underflows to zero through exp for the
// supported element types.
const MaskValueCeiling = -1000.0

type Config struct {
	MaxParallelism int
	MaskValue      float32
}

func Default() Config {
	return Config{
		MaxParallelism: 0, // resolved to runtime.NumCPU by the worker pool
		MaskValue:      DefaultMaskValue,
	}
}

// FromEnv layers BODKIN_* environment variables over the defaults. Log
// settings (BODKIN_LOG_LEVEL, BODKIN_LOG_FORMAT) are read by the logger
// package itself.
func FromEnv() Config {
	c := Default()
	c.MaxParallelism = envInt("BODKIN_MAX_PARALLELISM", c.MaxParallelism)
	c.MaskValue = envFloat32("BODKIN_MASK_VALUE", c.MaskValue)
	return c
}

func (c *Config) Validate() error {
	if c.MaxParallelism < 0 {
		return fmt.Errorf("invalid max_parallelism: %d (must be non-negative)", c.MaxParallelism)
	}
	f := float64(c.MaskValue)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid mask_value: %v (must be finite)", c.MaskValue)
	}
	if f > MaskValueCeiling {
		return fmt.Errorf("invalid mask_value: %v (must be <= %v)", c.MaskValue, MaskValueCeiling)
	}
	return nil
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat32(name string, fallback float32) float32 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return fallback
	}
	return float32(v)
}
