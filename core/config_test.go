package core

import (
	"context"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Window.Hours != 24 {
		t.Fatalf("expected 24h default window, got %d", cfg.Window.Hours)
	}
	if cfg.RateLimit.Interval() != time.Minute {
		t.Fatalf("expected 1m rate-limit interval, got %s", cfg.RateLimit.Interval())
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty service name", mutate: func(c *Config) { c.ServiceName = " " }},
		{name: "zero window", mutate: func(c *Config) { c.Window.Hours = 0 }},
		{name: "zero hop cap", mutate: func(c *Config) { c.Router.MaxHops = 0 }},
		{name: "zero question attempts", mutate: func(c *Config) { c.Router.MaxQuestionAttempts = 0 }},
		{name: "zero budget", mutate: func(c *Config) { c.RateLimit.Budget = 0 }},
		{name: "zero dispatch attempts", mutate: func(c *Config) { c.Dispatch.MaxAttempts = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCfgxConfigProviderLoad(t *testing.T) {
	provider := NewCfgxConfigProvider(NewStaticRawConfigLoader(map[string]any{
		"service_name": "chatflow-test",
		"window": map[string]any{
			"hours": 12,
		},
	}))

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ServiceName != "chatflow-test" {
		t.Fatalf("expected override service name, got %q", cfg.ServiceName)
	}
	if cfg.Window.Hours != 12 {
		t.Fatalf("expected 12h window override, got %d", cfg.Window.Hours)
	}
	if cfg.Router.MaxHops != DefaultConfig().Router.MaxHops {
		t.Fatal("untouched fields should keep defaults")
	}
}

func TestGoOptionsResolverLayering(t *testing.T) {
	defaults := DefaultConfig()

	loaded := Config{}
	loaded.Window.Hours = 12

	runtime := Config{}
	runtime.Window.Hours = 6
	runtime.ServiceName = "chatflow-runtime"

	resolved, err := (GoOptionsResolver{}).Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.Window.Hours != 6 {
		t.Fatalf("runtime layer should win, got %d", resolved.Window.Hours)
	}
	if resolved.ServiceName != "chatflow-runtime" {
		t.Fatalf("expected runtime service name, got %q", resolved.ServiceName)
	}
	if resolved.Dispatch.MaxAttempts != defaults.Dispatch.MaxAttempts {
		t.Fatal("defaults should fill unset fields")
	}
}
