package logger

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger for the given environment.
// prod uses JSON output, local/dev use colored console output.
// levelOverride (if non-empty) overrides the log level: debug, info, warn, error.
func NewLogger(env string, levelOverride ...string) (*zap.Logger, error) {
	cfg, err := config(env, levelOverride...)
	if err != nil {
		return nil, err
	}
	return build(cfg)
}

// NewJobLogger is NewLogger writing to stdout, so a coordinator capturing a
// build job's output sees its progress lines.
func NewJobLogger(env string, levelOverride ...string) (*zap.Logger, error) {
	cfg, err := config(env, levelOverride...)
	if err != nil {
		return nil, err
	}
	cfg.OutputPaths = []string{"stdout"}
	return build(cfg)
}

// NewWriterLogger builds the environment's encoder on top of w. Used for
// in-process build jobs whose output is captured by the coordinator.
func NewWriterLogger(w io.Writer, env string, levelOverride ...string) (*zap.Logger, error) {
	cfg, err := config(env, levelOverride...)
	if err != nil {
		return nil, err
	}
	var enc zapcore.Encoder
	if cfg.Encoding == "json" {
		enc = zapcore.NewJSONEncoder(cfg.EncoderConfig)
	} else {
		ec := cfg.EncoderConfig
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), cfg.Level)), nil
}

func config(env string, levelOverride ...string) (zap.Config, error) {
	var cfg zap.Config
	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "local", "dev", "docker", "test":
		cfg = zap.NewDevelopmentConfig()
	default:
		return cfg, fmt.Errorf("unknown environment %q for logger", env)
	}

	if len(levelOverride) > 0 && levelOverride[0] != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(levelOverride[0])); err != nil {
			return cfg, fmt.Errorf("invalid log level %q: %w", levelOverride[0], err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}
	return cfg, nil
}

func build(cfg zap.Config) (*zap.Logger, error) {
	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
