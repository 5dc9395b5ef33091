package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if err := (&Config{Level: "loud", Format: "json"}).Validate(); err == nil {
		t.Fatal("expected bad level to fail")
	}
	if err := (&Config{Level: "info", Format: "xml"}).Validate(); err == nil {
		t.Fatal("expected bad format to fail")
	}
}

func TestJSONOutput(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())
	var buf bytes.Buffer
	log := build(Config{Level: "warn", Format: "json"}, "api", &buf)
	log.Info().Msg("hidden")
	log.Warn().Str("k", "v").Msg("shown")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected one json record, got %q: %v", buf.String(), err)
	}
	if rec["message"] != "shown" || rec["service"] != "api" || rec["k"] != "v" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestFileOutput(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())
	path := filepath.Join(t.TempDir(), "app.log")
	if _, err := New(Config{Format: "json", Output: path}, "x"); err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := New(Config{Level: "nope"}, "x"); err == nil {
		t.Fatal("expected invalid config to fail")
	}
}
