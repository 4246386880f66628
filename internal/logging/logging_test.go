package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/tangzhangming/objeck/internal/config"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		cfg   config.LogConfig
		level zapcore.Level
	}{
		{config.LogConfig{Level: "info"}, zapcore.InfoLevel},
		{config.LogConfig{Level: "warn"}, zapcore.WarnLevel},
		{config.LogConfig{Debug: true, Level: "debug"}, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		l, err := New(tt.cfg)
		if err != nil {
			t.Fatalf("New(%+v): %v", tt.cfg, err)
		}
		if !l.Core().Enabled(tt.level) {
			t.Errorf("%+v: %s disabled", tt.cfg, tt.level)
		}
		if tt.level > zapcore.DebugLevel && l.Core().Enabled(tt.level-1) {
			t.Errorf("%+v: %s enabled", tt.cfg, tt.level-1)
		}
	}
}

func TestBadLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Error("bad level accepted")
	}
	if Must(config.LogConfig{Level: "loud"}) == nil {
		t.Error("Must returned nil")
	}
}
