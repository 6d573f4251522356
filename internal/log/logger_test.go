package log

import (
	"testing"

	"tradecmd/internal/config"
)

func TestNewLogger_ConsoleAndJSON(t *testing.T) {
	for _, encoding := range []string{"console", "json"} {
		logger, err := NewLogger(config.LoggingConfig{
			Level:    "debug",
			Encoding: encoding,
		})
		if err != nil {
			t.Fatalf("NewLogger(%s): %v", encoding, err)
		}
		logger.Debug("boot check")
		_ = logger.Sync()
	}
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(config.LoggingConfig{Level: "verbose", Encoding: "console"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
