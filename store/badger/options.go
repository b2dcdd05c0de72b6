package badger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Option func(*Store)

// WithLogger sets the logger used by the store and by badger itself
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithDataDir persists the store under dir. Without it the store is kept in
// memory.
func WithDataDir(dir string) Option {
	return func(s *Store) {
		s.dataDir = dir
	}
}

// WithGc enables periodic value log garbage collection for disk backed stores
func WithGc(enabled bool) Option {
	return func(s *Store) {
		s.gcEnabled = enabled
	}
}

// WithPromRegistry registers the store's counters with registry
func WithPromRegistry(registry prometheus.Registerer) Option {
	return func(s *Store) {
		s.promRegistry = registry
	}
}
