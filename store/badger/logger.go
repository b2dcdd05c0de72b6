package badger

import (
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

var _ badger.Logger = (*badgerLogger)(nil)

// badgerLogger routes badger's printf style logging into zerolog
type badgerLogger struct {
	logger zerolog.Logger
}

func newBadgerLogger(logger zerolog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger.With().Str("component", "badger").Logger()}
}

func (l *badgerLogger) Errorf(msg string, args ...any) {
	l.logger.Error().Msg(format(msg, args...))
}

func (l *badgerLogger) Warningf(msg string, args ...any) {
	l.logger.Warn().Msg(format(msg, args...))
}

func (l *badgerLogger) Infof(msg string, args ...any) {
	l.logger.Info().Msg(format(msg, args...))
}

func (l *badgerLogger) Debugf(msg string, args ...any) {
	l.logger.Debug().Msg(format(msg, args...))
}

func format(msg string, args ...any) string {
	return strings.TrimSuffix(fmt.Sprintf(msg, args...), "\n")
}
