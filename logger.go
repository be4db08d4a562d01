package sqlkit

import (
	"fmt"

	"go.uber.org/zap"
)

type LogLevel int

const (
	LogLevelDev LogLevel = iota
	LogLevelProd
)

// Logger is the minimal logging surface the package needs. The default
// implementation wraps zap; a no-op logger is used until one is configured.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type zapLogger struct {
	l *zap.SugaredLogger
}

// NewZapLogger builds the package's default zap-backed Logger.
func NewZapLogger(env LogLevel) (Logger, error) {
	switch env {
	case LogLevelDev:
		l, err := zap.NewDevelopmentConfig().Build()
		if err != nil {
			return nil, err
		}
		return &zapLogger{l.Sugar()}, nil
	case LogLevelProd:
		l, err := zap.NewProductionConfig().Build()
		if err != nil {
			return nil, err
		}
		return &zapLogger{l.Sugar()}, nil
	default:
		return nil, fmt.Errorf("log level should be either LogLevelDev or LogLevelProd")
	}
}

func (z *zapLogger) Debugf(format string, args ...any) {
	z.l.Debugf("[DEBUG] "+format, args...)
}

func (z *zapLogger) Infof(format string, args ...any) {
	z.l.Infof("[INFO] "+format, args...)
}

func (z *zapLogger) Warnf(format string, args ...any) {
	z.l.Warnf("[WARN] "+format, args...)
}

func (z *zapLogger) Errorf(format string, args ...any) {
	z.l.Errorf("[ERROR] "+format, args...)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
