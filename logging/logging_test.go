package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDefaultLoggerRoutesByLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := NewDefaultLoggerWithWriters(&out, &errOut, false)
	logger.SetLevel(DebugLevel)

	logger.Debug("debug line")
	logger.Info("info line", Fields{"channel": 3})
	logger.Warn("warn line")
	logger.Error(errors.New("boom"), "error line")

	assert.Contains(t, out.String(), "[DEBUG] debug line")
	assert.Contains(t, out.String(), "[INFO] info line channel=3")
	assert.Contains(t, errOut.String(), "[WARN] warn line")
	assert.Contains(t, errOut.String(), "[ERROR] error line: boom")
	assert.NotContains(t, out.String(), "warn line")
}

func TestDefaultLoggerFiltersBelowLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := NewDefaultLoggerWithWriters(&out, &errOut, false)
	logger.SetLevel(WarnLevel)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "shown")
}

func TestFatalCallsExit(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := NewDefaultLoggerWithWriters(&out, &errOut, false)
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatal(errors.New("device gone"), "stopping")

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "[FATAL] stopping: device gone")
}

func TestWithFieldsAndContext(t *testing.T) {
	var out, errOut bytes.Buffer
	base := NewDefaultLoggerWithWriters(&out, &errOut, false)

	ctx := ContextWithFields(context.Background(), Fields{"session": "abc"})
	ctx = ContextWithFields(ctx, Fields{"state": "streaming"})

	logger := base.WithFields(Fields{"component": "loop"}).WithContext(ctx)
	logger.Info("tick")

	line := out.String()
	assert.Contains(t, line, "[INFO] loop: tick session=abc state=streaming")
	assert.NotContains(t, line, "component=")
}

func TestFieldValuesAreQuotedWhenNeeded(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := NewDefaultLoggerWithWriters(&out, &errOut, false)

	logger.Info("published", Fields{"activity": "Deep Relaxation", "genre": "", "bytes": 412})

	assert.Contains(t, out.String(), `published activity="Deep Relaxation" bytes=412 genre=""`)
}

func TestDerivedLoggersShareLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	base := NewDefaultLoggerWithWriters(&out, &errOut, false)
	child := base.WithFields(Fields{"component": "recorder"})

	child.Debug("hidden")
	assert.Empty(t, out.String())

	base.SetLevel(DebugLevel)
	child.Debug("shown")
	assert.Contains(t, out.String(), "[DEBUG] recorder: shown")

	child.SetLevel(ErrorLevel)
	base.Warn("suppressed")
	assert.Empty(t, errOut.String())
}

func TestDisableColors(t *testing.T) {
	var out, errOut bytes.Buffer
	orig := GetGlobalLogger()
	SetGlobalLogger(NewDefaultLoggerWithWriters(&out, &errOut, true))
	t.Cleanup(func() { SetGlobalLogger(orig) })

	Warn("colored")
	assert.Contains(t, errOut.String(), ColorYellow)

	errOut.Reset()
	DisableColors()
	WithFields(Fields{"component": "cli"}).Warn("plain")
	assert.NotContains(t, errOut.String(), ColorYellow)
	assert.Contains(t, errOut.String(), "[WARN] cli: plain")
}
