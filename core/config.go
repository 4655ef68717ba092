package core

import (
	"fmt"
	"strings"
	"time"
)

type WindowConfig struct {
	Hours int `koanf:"hours" mapstructure:"hours"`
}

type RouterConfig struct {
	MaxHops             int `koanf:"max_hops" mapstructure:"max_hops"`
	MaxQuestionAttempts int `koanf:"max_question_attempts" mapstructure:"max_question_attempts"`
}

type RateLimitConfig struct {
	Budget          int `koanf:"budget" mapstructure:"budget"`
	IntervalSeconds int `koanf:"interval_seconds" mapstructure:"interval_seconds"`
}

func (c RateLimitConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

type DispatchConfig struct {
	MaxAttempts      int `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `koanf:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `koanf:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	SendTimeoutMS    int `koanf:"send_timeout_ms" mapstructure:"send_timeout_ms"`
}

func (c DispatchConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

func (c DispatchConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}

func (c DispatchConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutMS) * time.Millisecond
}

type SweepConfig struct {
	IntervalSeconds   int `koanf:"interval_seconds" mapstructure:"interval_seconds"`
	StaleSessionHours int `koanf:"stale_session_hours" mapstructure:"stale_session_hours"`
}

type WebhookConfig struct {
	VerifyToken    string `koanf:"verify_token" mapstructure:"verify_token"`
	FallbackSecret string `koanf:"fallback_secret" mapstructure:"fallback_secret"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig   `koanf:"webhook" mapstructure:"webhook"`
	Window      WindowConfig    `koanf:"window" mapstructure:"window"`
	Router      RouterConfig    `koanf:"router" mapstructure:"router"`
	RateLimit   RateLimitConfig `koanf:"rate_limit" mapstructure:"rate_limit"`
	Dispatch    DispatchConfig  `koanf:"dispatch" mapstructure:"dispatch"`
	Sweep       SweepConfig     `koanf:"sweep" mapstructure:"sweep"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "chatflow",
		Window: WindowConfig{
			Hours: 24,
		},
		Router: RouterConfig{
			MaxHops:             25,
			MaxQuestionAttempts: 3,
		},
		RateLimit: RateLimitConfig{
			Budget:          60,
			IntervalSeconds: 60,
		},
		Dispatch: DispatchConfig{
			MaxAttempts:      3,
			InitialBackoffMS: 500,
			MaxBackoffMS:     8000,
			SendTimeoutMS:    15000,
		},
		Sweep: SweepConfig{
			IntervalSeconds:   300,
			StaleSessionHours: 72,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Window.Hours <= 0 {
		return fmt.Errorf("core: window.hours must be positive")
	}
	if c.Router.MaxHops <= 0 {
		return fmt.Errorf("core: router.max_hops must be positive")
	}
	if c.Router.MaxQuestionAttempts <= 0 {
		return fmt.Errorf("core: router.max_question_attempts must be positive")
	}
	if c.RateLimit.Budget <= 0 || c.RateLimit.IntervalSeconds <= 0 {
		return fmt.Errorf("core: rate_limit budget and interval must be positive")
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("core: dispatch.max_attempts must be positive")
	}
	return nil
}
