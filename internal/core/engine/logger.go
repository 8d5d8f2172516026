package engine

import "go.uber.org/zap"

// Logger is the logging surface engine components use. Both the gofulmen
// logger and *zap.Logger satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

func loggerOrNop(logger Logger) Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
