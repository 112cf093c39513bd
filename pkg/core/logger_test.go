package core

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerFiltersBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, LevelWarn)

	log.Debug("should not appear")
	log.Info("should not appear either")
	log.Warn("this one shows")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "this one shows")
	assert.Contains(t, out, "[WARN]")
}

func TestLoggerWithAttachesKeyvals(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, LevelDebug).With("component", "store")

	log.Info("opened")

	out := buf.String()
	assert.True(t, strings.Contains(out, "component=store"))
	assert.True(t, strings.Contains(out, "opened"))
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	log := NopLogger()
	assert.NotPanics(t, func() {
		log.Debug("x")
		log.Info("x")
		log.Warn("x")
		log.Error("x")
		log.With("a", "b").Info("y")
	})
}
