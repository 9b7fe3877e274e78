package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8081" {
		t.Errorf("Port = %q, want 8081", cfg.Port)
	}
	if cfg.DataBackend != "sqlite" {
		t.Errorf("DataBackend = %q, want sqlite", cfg.DataBackend)
	}
	if cfg.ExportBatchSize != 50 {
		t.Errorf("ExportBatchSize = %d, want 50", cfg.ExportBatchSize)
	}
	if cfg.ExportInterval != 30*time.Second {
		t.Errorf("ExportInterval = %v, want 30s", cfg.ExportInterval)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATA_BACKEND", "mongo")
	t.Setenv("MONGO_DATABASE", "ledger_test")
	t.Setenv("EXPORT_INTERVAL", "2m")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Port)
	}
	if cfg.DataBackend != "mongo" {
		t.Errorf("DataBackend = %q, want mongo", cfg.DataBackend)
	}
	if cfg.MongoDatabase != "ledger_test" {
		t.Errorf("MongoDatabase = %q, want ledger_test", cfg.MongoDatabase)
	}
	if cfg.ExportInterval != 2*time.Minute {
		t.Errorf("ExportInterval = %v, want 2m", cfg.ExportInterval)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Load()
		cfg.SQLiteDBPath = t.TempDir() + "/khata.db"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"bad port", func(c *Config) { c.Port = "nope" }, "invalid port"},
		{"port out of range", func(c *Config) { c.Port = "70000" }, "invalid port"},
		{"bad backend", func(c *Config) { c.DataBackend = "postgres" }, "invalid data backend"},
		{"empty sqlite path", func(c *Config) { c.SQLiteDBPath = "" }, "SQLite database path"},
		{"mongo missing database", func(c *Config) { c.DataBackend = "mongo"; c.MongoDatabase = "" }, "Mongo database"},
		{"bad amqp scheme", func(c *Config) { c.AMQPURL = "http://localhost" }, "invalid AMQP URL scheme"},
		{"empty amqp queue", func(c *Config) { c.AMQPQueue = "" }, "AMQP queue"},
		{"tiny batch", func(c *Config) { c.ExportBatchSize = 0 }, "export batch size"},
		{"huge interval", func(c *Config) { c.ExportInterval = 48 * time.Hour }, "export interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Load()
	cfg.Port = "bad"
	cfg.DataBackend = "nope"
	cfg.ExportBatchSize = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{"invalid port", "invalid data backend", "export batch size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("combined error missing %q: %v", want, err)
		}
	}
}
