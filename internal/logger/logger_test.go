package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Environments(t *testing.T) {
	for _, env := range []string{"prod", "local", "dev", "docker", "test"} {
		l, err := NewLogger(env)
		if err != nil {
			t.Errorf("%s: %v", env, err)
			continue
		}
		_ = l.Sync()
	}
	if _, err := NewLogger("staging"); err == nil {
		t.Error("unknown environment must fail")
	}
}

func TestNewLogger_LevelOverride(t *testing.T) {
	l, err := NewLogger("prod", "warn")
	if err != nil {
		t.Fatal(err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info must be disabled at warn level")
	}
	if _, err := NewLogger("prod", "loud"); err == nil {
		t.Error("invalid level must fail")
	}
}

func TestNewJobLogger(t *testing.T) {
	l, err := NewJobLogger("local", "debug")
	if err != nil {
		t.Fatal(err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug must be enabled")
	}
}

func TestNewWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWriterLogger(&buf, "prod")
	if err != nil {
		t.Fatal(err)
	}
	l.Info("build started")
	if !strings.Contains(buf.String(), `"msg":"build started"`) {
		t.Errorf("expected JSON line in writer, got %q", buf.String())
	}

	buf.Reset()
	l, err = NewWriterLogger(&buf, "local")
	if err != nil {
		t.Fatal(err)
	}
	l.Info("chunked")
	if !strings.Contains(buf.String(), "INFO") || !strings.Contains(buf.String(), "chunked") {
		t.Errorf("expected console line in writer, got %q", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("missing logger must fall back to a no-op logger")
	}
	l := zap.NewExample()
	if got := FromContext(ContextWithLogger(context.Background(), l)); got != l {
		t.Error("expected stored logger")
	}
}
