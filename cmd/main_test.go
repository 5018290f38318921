package main

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(app, []byte("app:\n  port: 9000\n  log_level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}

	appConfigPath, sourceConfigPath = app, ""
	workDir = filepath.Join(dir, "work")
	logLevel = "debug"
	t.Cleanup(func() {
		appConfigPath, sourceConfigPath, workDir, logLevel = "app.yaml", "source.yaml", "", ""
	})

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.App.Port != 9000 || cfg.App.LogLevel != "debug" || cfg.App.WorkDir != workDir {
		t.Errorf("unexpected app config %+v", cfg.App)
	}
	if _, err := os.Stat(workDir); err != nil {
		t.Errorf("workdir not created: %v", err)
	}

	logger, err := newLogger(cfg, "stderr")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hello")
	_ = logger.Sync()
	if _, err := os.Stat(filepath.Join(workDir, "testgen.log")); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{"index": false, "generate": false, "serve": false, "mcp": false, "stats": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
