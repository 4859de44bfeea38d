package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelOrdering(t *testing.T) {
	assert.True(t, DEBUG < INFO)
	assert.True(t, INFO < WARN)
	assert.True(t, WARN < ERROR)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN)
	l.logger = log.New(&buf, "", 0)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "[WARN] warn message")
	assert.Contains(t, output, "[ERROR] error message")
}

func TestMessageFormatting(t *testing.T) {
	var buf bytes.Buffer
	l := New(DEBUG)
	l.logger = log.New(&buf, "", 0)

	l.Error("pass %s failed at level %d", "M2L", 3)
	assert.Contains(t, buf.String(), "[ERROR] pass M2L failed at level 3")
}

func TestWithTagPrefixesEveryLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(INFO)
	l.logger = log.New(&buf, "", 0)
	tagged := l.WithTag("peer1")

	tagged.Info("ready")
	assert.Contains(t, buf.String(), "[INFO] [peer1] ready")
}

func TestSetLevel(t *testing.T) {
	original := defaultLogger.level
	defer func() { defaultLogger.level = original }()

	SetLevel(ERROR)
	assert.Equal(t, ERROR, defaultLogger.level)
}

func TestGlobalFunctionsUseDefaultLogger(t *testing.T) {
	originalLevel := defaultLogger.level
	originalLogger := defaultLogger.logger
	defer func() {
		defaultLogger.level = originalLevel
		defaultLogger.logger = originalLogger
	}()

	var buf bytes.Buffer
	defaultLogger.logger = log.New(&buf, "", 0)
	SetLevel(DEBUG)

	Debug("d")
	Info("i")
	Warn("w")
	Error("e")

	output := buf.String()
	assert.Contains(t, output, "[DEBUG] d")
	assert.Contains(t, output, "[INFO] i")
	assert.Contains(t, output, "[WARN] w")
	assert.Contains(t, output, "[ERROR] e")
}
