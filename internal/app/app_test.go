package app

import (
	"examhub_backend/internal/config"
	"examhub_backend/internal/testutil"
	"examhub_backend/pkg/logger"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestConfigReloadUpdatesLogLevel(t *testing.T) {
	s := newTestServer(t)
	original := logger.Level()
	t.Cleanup(func() {
		logger.SetLevel(&config.Config{Log: config.LogConfig{Level: original.String()}})
	})

	tests := []struct {
		name  string
		level string
		want  zapcore.Level
	}{
		{"切换到 error", "error", zapcore.ErrorLevel},
		{"切换到 debug", "debug", zapcore.DebugLevel},
		{"非法级别使用模式默认", "verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testutil.Config(t)
			cfg.Server.Mode = "release"
			cfg.Log.Level = tt.level

			for _, callback := range s.app.configCallbacks {
				callback(cfg)
			}

			if got := logger.Level(); got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}
