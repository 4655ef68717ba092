// Package gologger bridges the module's glog loggers to the go-job logging
// contracts so queue workers and sweep jobs log through the same provider.
package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Bridge holds a resolved glog provider/logger pair and exposes the go-job
// equivalents derived from it.
type Bridge struct {
	Provider glog.LoggerProvider
	Logger   glog.Logger
}

// ResolveBridge resolves the pair with provider > logger > nop precedence
// and wraps it for reuse across job wiring.
func ResolveBridge(name string, provider glog.LoggerProvider, logger glog.Logger) Bridge {
	resolvedProvider, resolvedLogger := glog.Resolve(name, provider, logger)
	return Bridge{Provider: resolvedProvider, Logger: resolvedLogger}
}

// JobProvider adapts the resolved provider to go-job's LoggerProvider.
func (b Bridge) JobProvider() job.LoggerProvider {
	if b.Provider == nil {
		return nil
	}
	return job.GoLoggerProvider(b.Provider)
}

// JobLogger adapts the resolved logger to go-job's Logger.
func (b Bridge) JobLogger() job.Logger {
	if b.Logger == nil {
		return nil
	}
	return job.GoLogger(b.Logger)
}
