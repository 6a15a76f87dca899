package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Tee returns a logger that writes every entry to all given loggers. Nil
// loggers are skipped.
func Tee(loggers ...*zap.Logger) *zap.Logger {
	cores := make([]zapcore.Core, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			cores = append(cores, l.Core())
		}
	}
	if len(cores) == 0 {
		return zap.NewNop()
	}
	return zap.New(zapcore.NewTee(cores...))
}

// ForCategory returns base extended with the category file of ml. Errors are
// mirrored to the error file too. With a nil ml base is returned unchanged.
func ForCategory(base *zap.Logger, ml *MultiLogger, category LogCategory) *zap.Logger {
	if ml == nil {
		return base
	}
	loggers := []*zap.Logger{base, ml.GetLogger(category)}
	if category != CategoryError {
		loggers = append(loggers, ml.Error())
	}
	return Tee(loggers...).Named(string(category))
}
