package logging

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config options used in creating zap logger
type Config struct {
	FilePath string // log file path, stderr when empty
	Level    string // debug, info, warn or error
	Env      string // production selects the ECS JSON encoder
	AppID    string // reported as service.id
}

type contextKey struct{}

// NewLogger returns a zap logger writing console lines in development and
// ECS compatible JSON in production. Stack traces are attached above warn.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("unknown logging level %q: %w", cfg.Level, err)
	}
	sink, err := openSink(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open log sink: %w", err)
	}

	core := zapcore.NewCore(newEncoder(cfg.Env), sink, zap.NewAtomicLevelAt(level))
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	if cfg.AppID != "" {
		logger = logger.With(zap.String("service.id", cfg.AppID))
	}
	return logger, nil
}

func newEncoder(env string) zapcore.Encoder {
	if env != "production" {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.CallerKey = "log.origin.file.name"
		return zapcore.NewConsoleEncoder(encoderConfig)
	}

	ecsEncoderConfig := zap.NewProductionEncoderConfig()
	ecsEncoderConfig.TimeKey = "@timestamp"
	ecsEncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.000Z"))
	}
	ecsEncoderConfig.MessageKey = "message"
	ecsEncoderConfig.LevelKey = "log.level"
	ecsEncoderConfig.CallerKey = "log.origin.file.name"
	ecsEncoderConfig.StacktraceKey = "error.stack_trace"
	return zapcore.NewJSONEncoder(ecsEncoderConfig)
}

func openSink(path string) (zapcore.WriteSyncer, error) {
	if path == "" {
		return zapcore.Lock(os.Stderr), nil
	}
	fd, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return nil, err
	}
	return zapcore.Lock(fd), nil
}

// SetLoggerInContext bind logger to ctx
func SetLoggerInContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// ExtractLoggerFromContext the logger bound to ctx, or the global zap logger
func ExtractLoggerFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*zap.Logger); ok {
		return logger
	}
	return zap.L()
}
