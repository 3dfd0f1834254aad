package config

import (
	"testing"
)

func TestNewDefaults(t *testing.T) {
	t.Setenv("REDIS_HOST", "localhost")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if cfg.APIServerPort != "8080" {
		t.Errorf("APIServerPort = %q, want 8080", cfg.APIServerPort)
	}
	if cfg.RedisPort != "6379" {
		t.Errorf("RedisPort = %q, want 6379", cfg.RedisPort)
	}
	if cfg.RedisFixChannel != "location:fixes" {
		t.Errorf("RedisFixChannel = %q", cfg.RedisFixChannel)
	}
	if cfg.GeocoderMaxHits != 5 {
		t.Errorf("GeocoderMaxHits = %d, want 5", cfg.GeocoderMaxHits)
	}
	if cfg.Env != EnvProd {
		t.Errorf("Env = %q, want prod", cfg.Env)
	}
}

func TestNewOverrides(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("GEOCODER_MAX_HITS", "3")
	t.Setenv("ENV", "dev")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if cfg.RedisHost != "redis.internal" {
		t.Errorf("RedisHost = %q", cfg.RedisHost)
	}
	if cfg.GeocoderMaxHits != 3 {
		t.Errorf("GeocoderMaxHits = %d, want 3", cfg.GeocoderMaxHits)
	}
	if cfg.Env != EnvDev {
		t.Errorf("Env = %q, want dev", cfg.Env)
	}
}

func TestNewRejectsInvalidEnv(t *testing.T) {
	t.Setenv("ENV", "staging")

	if _, err := New(); err == nil {
		t.Error("invalid ENV value should be rejected")
	}
}

func TestEnvIsValid(t *testing.T) {
	if !EnvProd.IsValid() || !EnvDev.IsValid() {
		t.Error("prod and dev are valid")
	}
	if Env("test").IsValid() {
		t.Error("unknown env should be invalid")
	}
}
