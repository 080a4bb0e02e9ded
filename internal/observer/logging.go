// Package observer provides state transition observers for action tracing
// and metrics.
package observer

import (
	"go.uber.org/zap"

	"github.com/vyrodovalexey/statestore/internal/state"
)

// Logging traces every transition through zap. Rejected operations are
// logged at Warn, everything else at Debug.
type Logging struct {
	logger *zap.Logger
}

// Compile-time check that Logging satisfies state.Observer.
var _ state.Observer = (*Logging)(nil)

// NewLogging creates a logging observer.
func NewLogging(logger *zap.Logger) *Logging {
	return &Logging{logger: logger.Named("trace")}
}

// Observe logs t.
func (l *Logging) Observe(t state.Transition) {
	fields := []zap.Field{
		zap.String("store", t.Store),
		zap.String("action", t.Action.Name),
		zap.Uint64("seq", t.Seq),
	}
	if t.Action.Elapsed > 0 {
		fields = append(fields, zap.Duration("elapsed", t.Action.Elapsed))
	}

	if t.Action.Phase == state.PhaseRejected {
		fields = append(fields, zap.String("error", t.Action.Err))
		l.logger.Warn("operation rejected", fields...)
		return
	}

	l.logger.Debug("state transition", fields...)
}
