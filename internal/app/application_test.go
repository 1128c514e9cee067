package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"classhub/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, level, err := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown", "connection_id", "abc")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), `"connection_id":"abc"`) {
		t.Errorf("Expected JSON output, got %s", buf.String())
	}

	level.Set(slog.LevelDebug)
	logger.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("LevelVar change should take effect immediately")
	}

	if _, _, err := NewLogger(config.LogConfig{Level: "info", Format: "xml"}, &buf); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "app.db")
	return cfg
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewApplication_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hub.ReapInterval = 0
	if _, err := NewApplication(cfg, Options{Logger: quietLogger}); err == nil {
		t.Error("Expected invalid configuration error")
	}
}

func TestApplication_StartStop(t *testing.T) {
	application, err := NewApplication(testConfig(t), Options{Logger: quietLogger})
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if strings.HasSuffix(application.Addr(), ":0") {
		t.Errorf("Expected a bound port, got %s", application.Addr())
	}
	if !application.Hub().Running() {
		t.Error("Hub should be running after Start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if application.Hub().Running() {
		t.Error("Hub should be stopped after Stop")
	}
}

func TestApplication_StartFailsOnBusyPort(t *testing.T) {
	first, err := NewApplication(testConfig(t), Options{Logger: quietLogger})
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer first.Stop(context.Background())

	cfg := testConfig(t)
	host, port, _ := strings.Cut(first.Addr(), ":")
	cfg.HTTP.Host = host
	if cfg.HTTP.Port, err = strconv.Atoi(port); err != nil {
		t.Fatalf("bad port %q: %v", port, err)
	}
	second, err := NewApplication(cfg, Options{Logger: quietLogger})
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		t.Error("Expected listen error on a busy port")
	}
	if second.Hub().Running() {
		t.Error("Hub should be stopped when Start fails")
	}
	_ = second.Stop(context.Background())
}

func TestApplication_HotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classhub.yaml")
	write := func(content string) {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	base := "http:\n  host: 127.0.0.1\n  port: 0\ndatabase:\n  enabled: false\n"
	write(base + "log:\n  level: info\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	level := new(slog.LevelVar)
	application, err := NewApplication(cfg, Options{ConfigPath: path, Logger: quietLogger, LogLevel: level})
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer application.Stop(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for level.Level() != slog.LevelDebug {
		if time.Now().After(deadline) {
			t.Fatal("log level was not reloaded")
		}
		write(base + "hub:\n  reap_interval: 1m\nlog:\n  level: debug\n")
		time.Sleep(50 * time.Millisecond)
	}
}
