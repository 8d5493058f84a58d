package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "catalog:\n  base_url: http://catalog:8080\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Catalog.BaseURL != "http://catalog:8080" {
		t.Errorf("BaseURL = %q, want http://catalog:8080", cfg.Catalog.BaseURL)
	}
	if cfg.Reservation.ExpiryAfter != 1800 {
		t.Errorf("ExpiryAfter = %d, want 1800", cfg.Reservation.ExpiryAfter)
	}
	if cfg.Reservation.RemindAfter != 1500 {
		t.Errorf("RemindAfter = %d, want 1500", cfg.Reservation.RemindAfter)
	}
	if cfg.Climate.WindowSize != 30 {
		t.Errorf("WindowSize = %d, want 30", cfg.Climate.WindowSize)
	}
	if cfg.Climate.AlertCooldown != 300 {
		t.Errorf("AlertCooldown = %d, want 300", cfg.Climate.AlertCooldown)
	}
	if cfg.MQTT.BaseTopic != "iotail" {
		t.Errorf("BaseTopic = %q, want iotail", cfg.MQTT.BaseTopic)
	}
	if d := cfg.Climate.Defaults; d.MinTemperature != 15 || d.MaxTemperature != 30 || d.MinHumidity != 20 || d.MaxHumidity != 80 {
		t.Errorf("comfort defaults = %+v, want {15 30 20 80}", d)
	}
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `
catalog:
  base_url: http://catalog:9090
  token: file-token
mqtt:
  base_topic: petshop
  broker:
    host: broker.local
    port: 8883
    tls: true
climate:
  window_size: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("broker host = %q", cfg.MQTT.Broker.Host)
	}
	if !cfg.MQTT.Broker.TLS {
		t.Error("broker TLS should be true")
	}
	if cfg.MQTT.BaseTopic != "petshop" {
		t.Errorf("base topic = %q", cfg.MQTT.BaseTopic)
	}
	if cfg.Climate.WindowSize != 10 {
		t.Errorf("window size = %d, want 10", cfg.Climate.WindowSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KENNELCORE_CATALOG_TOKEN", "env-token")
	t.Setenv("KENNELCORE_MQTT_PORT", "8883")
	t.Setenv("KENNELCORE_JWT_SECRET", "env-secret")

	path := writeConfig(t, "catalog:\n  base_url: http://catalog:8080\n  token: file-token\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Catalog.Token != "env-token" {
		t.Errorf("Token = %q, want env override", cfg.Catalog.Token)
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.Security.JWTSecret != "env-secret" {
		t.Errorf("JWTSecret = %q, want env-secret", cfg.Security.JWTSecret)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad catalog url", "catalog:\n  base_url: catalog.local\n"},
		{"bad qos", "mqtt:\n  qos: 3\n"},
		{"wildcard base topic", "mqtt:\n  base_topic: iotail/+\n"},
		{"remind after expiry", "reservation:\n  remind_after: 2000\n"},
		{"zero window", "climate:\n  window_size: 0\n"},
		{"inverted temp range", "climate:\n  defaults:\n    min_temperature: 35\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			if _, err := Load(path); err == nil {
				t.Error("Load() should have failed validation")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() should fail for missing file")
	}
}
