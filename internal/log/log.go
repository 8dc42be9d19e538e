package log

import (
	"go.uber.org/zap"
)

// Logger wraps a zap sugared logger
type Logger struct {
	*zap.SugaredLogger
}

// NewLogger builds a production logger, or a development one when debug is set
func NewLogger(debug bool) *Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return &Logger{logger.Sugar()}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

// Named returns a child logger for a component
func (l *Logger) Named(name string) *Logger {
	return &Logger{l.SugaredLogger.Named(name)}
}

// OrNop returns l, or a discarding logger when l is nil
func OrNop(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return NewNop()
}
