package actuator

import (
	"context"

	"go.uber.org/zap"
)

// Log writes waveforms to the logger instead of a device.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a logging actuator.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Dispatch implements Actuator.
func (l *Log) Dispatch(ctx context.Context, w Waveform) error {
	l.logger.Info("vibrate",
		zap.String("package", w.Package),
		zap.Int("pairs", len(w.Pairs)),
		zap.Int64("total_ms", w.TotalMs()),
	)
	return nil
}
