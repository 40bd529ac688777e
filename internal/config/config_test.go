package config

import (
	"math"
	"testing"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"negative_parallelism", func(c *Config) { c.MaxParallelism = -1 }, true},
		{"mask_value_nan", func(c *Config) { c.MaskValue = float32(math.NaN()) }, true},
		{"mask_value_inf", func(c *Config) { c.MaskValue = float32(math.Inf(-1)) }, true},
		{"mask_value_too_high", func(c *Config) { c.MaskValue = -1 }, true},
		{"mask_value_at_ceiling", func(c *Config) { c.MaskValue = MaskValueCeiling }, false},
		{"mask_value_deep", func(c *Config) { c.MaskValue = -60000 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			err := c.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("BODKIN_MAX_PARALLELISM", "8")
	t.Setenv("BODKIN_MASK_VALUE", "-30000")
	c := FromEnv()
	if c.MaxParallelism != 8 {
		t.Errorf("MaxParallelism = %d, want 8", c.MaxParallelism)
	}
	if c.MaskValue != -30000 {
		t.Errorf("MaskValue = %v, want -30000", c.MaskValue)
	}
}

func TestFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("BODKIN_MAX_PARALLELISM", "many")
	t.Setenv("BODKIN_MASK_VALUE", "very negative")
	c := FromEnv()
	d := Default()
	if c.MaxParallelism != d.MaxParallelism || c.MaskValue != d.MaskValue {
		t.Errorf("garbage env not ignored: %+v", c)
	}
}
