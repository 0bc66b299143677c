package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger("debug")
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}

	logger = NewLogger("invalid")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", logger.GetLevel())
	}

	logger = NewLogger("")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info for empty level, got %s", logger.GetLevel())
	}
}

func TestComponentTagsOutput(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewLoggerTo(&buf, "info"), "director")
	log.Info().Msg("hello")
	if !strings.Contains(buf.String(), `"component":"director"`) {
		t.Fatalf("component field missing: %s", buf.String())
	}
}
