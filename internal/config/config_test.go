package config

import (
	"testing"
	"time"
)

func TestDefaultIsComplete(t *testing.T) {
	cfg := Default()

	if cfg.Addr == "" {
		t.Error("default addr must be set")
	}
	if cfg.DatabasePath == "" {
		t.Error("default database path must be set")
	}
	if cfg.DBTimeout == 0 || cfg.ShutdownTimeout == 0 || cfg.ReadHeaderTimeout == 0 {
		t.Error("default timeouts must be set")
	}
}

func TestUpdateFromOverridesNonZero(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{
		Addr:            ":9999",
		LogLevel:        "debug",
		ShutdownTimeout: 30 * time.Second,
	})

	if cfg.Addr != ":9999" {
		t.Errorf("addr not overridden: %s", cfg.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level not overridden: %s", cfg.LogLevel)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("shutdown timeout not overridden: %s", cfg.ShutdownTimeout)
	}
	if cfg.DatabasePath != Default().DatabasePath {
		t.Error("zero-value fields must keep their defaults")
	}
}
