package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFrom_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.API.DefaultModel != DefaultConfig().API.DefaultModel {
		t.Fatalf("DefaultModel = %q, want default", cfg.API.DefaultModel)
	}
	if cfg.API.Timeout() != 120*time.Second {
		t.Fatalf("Timeout = %v, want 120s", cfg.API.Timeout())
	}
}

func TestSaveToLoadFrom_PreservesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	budget := 25.0
	in := DefaultConfig()
	in.General.DataDir = "/tmp/cchat-data"
	in.API.BaseURL = "http://localhost:9999"
	in.API.RequestsPerMinute = 30
	in.Budget.MonthlyUSD = &budget

	if err := SaveTo(path, in); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	out, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if out.API.BaseURL != in.API.BaseURL || out.API.RequestsPerMinute != 30 {
		t.Fatalf("API = %+v, want %+v", out.API, in.API)
	}
	if out.Budget.MonthlyUSD == nil || *out.Budget.MonthlyUSD != 25 {
		t.Fatalf("MonthlyUSD = %v, want 25", out.Budget.MonthlyUSD)
	}
	if DBPath(out) != filepath.Join("/tmp/cchat-data", "cchat.db") {
		t.Fatalf("DBPath = %q", DBPath(out))
	}
}

func TestLoadFrom_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[api\nbase_url ="), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil || !strings.Contains(err.Error(), "parsing config") {
		t.Fatalf("LoadFrom err = %v, want parsing error", err)
	}
}

func TestDataDir_XDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	if got := DataDir(DefaultConfig()); got != filepath.Join("/xdg/data", "cchat") {
		t.Fatalf("DataDir = %q", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupLoggerWithWriters_FansOut(t *testing.T) {
	var console, file bytes.Buffer
	logger := SetupLoggerWithWriters(&console, &file, slog.LevelInfo)
	logger.Info("hello", "k", "v")
	logger.Debug("hidden")

	if !strings.Contains(console.String(), "msg=hello") {
		t.Fatalf("console output = %q, want text record", console.String())
	}
	if !strings.Contains(file.String(), `"msg":"hello"`) {
		t.Fatalf("file output = %q, want JSON record", file.String())
	}
	if strings.Contains(file.String(), "hidden") {
		t.Fatal("debug record leaked past info level")
	}
}
