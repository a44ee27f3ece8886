package config

import "testing"

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidate(t *testing.T) {
	type spec struct {
		mutate func(*Config)
		expErr string
	}
	specs := []spec{
		{func(c *Config) { c.Device = "" }, "config: no device specified"},
		{func(c *Config) { c.InteractiveTargetFPS = 0 }, "config: interactive target fps must be positive; got 0"},
		{func(c *Config) { c.MinInteractiveScale = 0.5 }, "config: min interactive scale must be at least 1; got 0.5"},
		{func(c *Config) { c.MaxInteractiveScale = 0.9 }, "config: max interactive scale 0.9 is below min scale 1"},
		{func(c *Config) { c.InitialInteractiveScale = 6 }, "config: initial interactive scale 6 outside [1, 5]"},
		{func(c *Config) { c.ScaleStep = 0 }, "config: scale step must be positive; got 0"},
		{func(c *Config) { c.InteractiveMaxDepth = 0 }, "config: interactive max depth must be at least 1; got 0"},
	}

	for index, s := range specs {
		cfg := Default()
		s.mutate(cfg)
		err := cfg.Validate()
		if err == nil || err.Error() != s.expErr {
			t.Fatalf("[spec %d] expected error %q; got %v", index, s.expErr, err)
		}
	}
}
