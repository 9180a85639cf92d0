// Package telemetry is the structured-logging surface shared by every
// package in this module. It wraps logiface, using stumpy as the default
// (and only bundled) event backend, so that every component logs through the
// same Logger type regardless of which concrete backend a caller wires up.
package telemetry

import (
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logging handle threaded through worker, reachability,
// broadcast, transport, and the rest of this module.
type Logger = *logiface.Logger[*stumpy.Event]

// Option configures a Logger built by New.
type Option = logiface.Option[*stumpy.Event]

// New builds a Logger writing stumpy-encoded JSON events, honoring any
// logiface/stumpy options supplied by the caller (e.g. stumpy.L.WithWriter,
// stumpy.L.WithStumpy).
func New(opts ...Option) Logger {
	return stumpy.L.New(opts...)
}

// Discard returns a Logger that drops every event. Used as the zero-value
// fallback by packages that accept a Logger via functional option.
func Discard() Logger {
	return stumpy.L.New(logiface.WithLevel[*stumpy.Event](logiface.LevelDisabled))
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = Discard()
)

// SetDefault installs the process-wide fallback Logger, used by cmd/timely
// and by any package constructed without an explicit WithLogger option.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if l == nil {
		l = Discard()
	}
	defaultLogger = l
}

// Default returns the process-wide fallback Logger.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}
