package log

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestSetDefaultRedirectsOutput(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	defer SetDefault(prev)

	SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	Info("hello", "key", "value")

	if buf.Len() == 0 {
		t.Fatal("expected log output to be captured by the redirected handler")
	}
}

func TestSetDefaultIgnoresNil(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	SetDefault(nil)
	if Default() != prev {
		t.Fatal("SetDefault(nil) must not replace the logger")
	}
}
