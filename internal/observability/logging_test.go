package observability

import (
	"testing"

	"github.com/spec-kit/helpdesk/internal/config"
)

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "chatty"}, config.AppConfig{Name: "helpdesk", Env: "test"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Fatal("debug should be disabled when the level is unknown")
	}
	if !logger.Core().Enabled(0) {
		t.Fatal("info should be enabled")
	}
}
