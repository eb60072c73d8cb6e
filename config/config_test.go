package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Empty values fall back to the defaults for the parsed settings.
	t.Setenv("PORT", "8080")
	t.Setenv("MAX_CONTENT_LENGTH", "")
	t.Setenv("ALLOWED_EXTENSIONS", "")
	t.Setenv("SESSION_TTL", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.MaxContentLength != DefaultMaxContentLength {
		t.Errorf("expected max content length %d, got %d", DefaultMaxContentLength, cfg.MaxContentLength)
	}
	if !reflect.DeepEqual(cfg.AllowedExtensions, DefaultAllowedExtensions) {
		t.Errorf("expected default extensions, got %v", cfg.AllowedExtensions)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("expected 24h session ttl, got %v", cfg.SessionTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("UPLOAD_FOLDER", "/srv/music")
	t.Setenv("MAX_CONTENT_LENGTH", "1024")
	t.Setenv("ALLOWED_EXTENSIONS", "mp3, ogg ,")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()
	if cfg.DBDriver != "sqlite" {
		t.Errorf("expected lower-cased driver, got %s", cfg.DBDriver)
	}
	if cfg.UploadDir != "/srv/music" {
		t.Errorf("unexpected upload dir %s", cfg.UploadDir)
	}
	if cfg.MaxContentLength != 1024 {
		t.Errorf("unexpected max content length %d", cfg.MaxContentLength)
	}
	if !reflect.DeepEqual(cfg.AllowedExtensions, []string{"mp3", "ogg"}) {
		t.Errorf("unexpected extensions %v", cfg.AllowedExtensions)
	}
	if cfg.SessionTTL != 90*time.Minute {
		t.Errorf("unexpected session ttl %v", cfg.SessionTTL)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("unexpected redis db %d", cfg.RedisDB)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("MAX_CONTENT_LENGTH", "lots")
	t.Setenv("SESSION_TTL", "forever")

	cfg := Load()
	if cfg.MaxContentLength != DefaultMaxContentLength {
		t.Errorf("expected fallback max content length, got %d", cfg.MaxContentLength)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("expected fallback ttl, got %v", cfg.SessionTTL)
	}
}
