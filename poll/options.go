package poll

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option is a set of configurable parameters. If left empty, defaults
// will be used
type Option func(e *Engine)

// WithLogger sets the logger of the engine and its access registry
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the source of the current time. Poll start and end
// times are derived from it in unix seconds.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithPublisher sets where state transition events are published. Without
// one, events are dropped.
func WithPublisher(publisher Publisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

// WithStore replaces the default in-memory store
func WithStore(store Store) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithPromRegistry registers the engine's counters with registry
func WithPromRegistry(registry prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = newEngineMetrics(registry)
	}
}

// WithParameters overrides DefaultParameters
func WithParameters(params Parameters) Option {
	return func(e *Engine) {
		e.params = params
	}
}
