package config

import (
	"testing"
	"time"
)

// ============================================================
// Тесты загрузки конфигурации
// ============================================================

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "test-token")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "spotalert" {
		t.Errorf("Database.Name = %q, want spotalert", cfg.Database.Name)
	}
	if cfg.Engine.CheckPeriod != 5*time.Minute {
		t.Errorf("Engine.CheckPeriod = %v, want 5m", cfg.Engine.CheckPeriod)
	}
	if cfg.Engine.CandleInterval != "5m" {
		t.Errorf("Engine.CandleInterval = %q, want 5m", cfg.Engine.CandleInterval)
	}
	if cfg.Engine.TrendCloseOnly {
		t.Error("Engine.TrendCloseOnly should default to false")
	}
	if cfg.Delivery.BatchSize != 50 {
		t.Errorf("Delivery.BatchSize = %d, want 50", cfg.Delivery.BatchSize)
	}
	if cfg.Delivery.RetentionPeriod != 72*time.Hour {
		t.Errorf("Delivery.RetentionPeriod = %v, want 72h", cfg.Delivery.RetentionPeriod)
	}
}

func TestLoad_CheckPeriodFromMinutes(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALERTS_CHECK_PERIOD_MIN", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.CheckPeriod != 15*time.Minute {
		t.Errorf("Engine.CheckPeriod = %v, want 15m", cfg.Engine.CheckPeriod)
	}
}

func TestLoad_MissingDiscordToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Error("Load should fail without DISCORD_TOKEN")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"invalid server port", "SERVER_PORT", "99999"},
		{"invalid db port", "DB_PORT", "0"},
		{"check period below minimum", "ALERTS_CHECK_PERIOD_MIN", "0"},
		{"unknown candle interval", "CANDLE_INTERVAL", "3m"},
		{"zero candle limit", "CANDLE_LIMIT", "0"},
		{"zero batch size", "DELIVERY_BATCH_SIZE", "0"},
		{"zero commit every", "DELIVERY_COMMIT_EVERY", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load should fail with %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_MalformedEnvFallsBackToDefault(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CANDLE_LIMIT", "not-a-number")
	t.Setenv("DELIVERY_SEND_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.CandleLimit != 3 {
		t.Errorf("Engine.CandleLimit = %d, want default 3", cfg.Engine.CandleLimit)
	}
	if cfg.Delivery.SendTimeout != 10*time.Second {
		t.Errorf("Delivery.SendTimeout = %v, want default 10s", cfg.Delivery.SendTimeout)
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "secret", Name: "spotalert", SSLMode: "disable",
	}

	dsn := d.DSN()
	want := "host=db port=5432 user=u password=secret dbname=spotalert sslmode=disable"
	if dsn != want {
		t.Errorf("DSN = %q, want %q", dsn, want)
	}

	safe := d.DSNWithoutPassword()
	if safe != "host=db port=5432 user=u dbname=spotalert sslmode=disable" {
		t.Errorf("DSNWithoutPassword = %q", safe)
	}
}
