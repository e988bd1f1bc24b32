package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Notes.Key != "voicescribe_notes" {
		t.Fatalf("expected default notes key, got %q", cfg.Notes.Key)
	}
	if cfg.Notes.AutoSaveDelay != 800 {
		t.Fatalf("expected 800ms auto-save delay, got %d", cfg.Notes.AutoSaveDelay)
	}
	if cfg.Speech.StopPhrase != "stop recording" {
		t.Fatalf("expected default stop phrase, got %q", cfg.Speech.StopPhrase)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	data := `
runtime_name: scribe-test
storage:
  backend: file
  path: ./notes.json
notes:
  auto_save: false
speech:
  mode: exec
  command: "recognizer --continuous"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "scribe-test" {
		t.Fatalf("expected runtime name override, got %q", cfg.RuntimeName)
	}
	if cfg.Storage.Backend != "file" || cfg.Storage.Path != "./notes.json" {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Notes.AutoSave {
		t.Fatal("expected auto save disabled")
	}
	if cfg.Speech.Command != "recognizer --continuous" {
		t.Fatalf("unexpected speech command %q", cfg.Speech.Command)
	}
	// untouched sections keep their defaults
	if cfg.Notes.AutoSaveDelay != 800 {
		t.Fatalf("expected default delay to survive partial file, got %d", cfg.Notes.AutoSaveDelay)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_SCRIBE_BUS_ENABLED", "true")
	t.Setenv("LOQA_SCRIBE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_SCRIBE_BUS_USERNAME", "alice")
	t.Setenv("LOQA_SCRIBE_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_SCRIBE_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_SCRIBE_STORAGE_PATH", "./tmp.db")
	t.Setenv("LOQA_SCRIBE_STORAGE_MAX_REVISIONS", "7")
	t.Setenv("LOQA_SCRIBE_NOTES_AUTO_SAVE", "false")
	t.Setenv("LOQA_SCRIBE_NOTES_AUTO_SAVE_DELAY_MS", "250")
	t.Setenv("LOQA_SCRIBE_SPEECH_MODE", "bus")
	t.Setenv("LOQA_SCRIBE_SPEECH_PHRASES", "hello world, stop recording")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Storage.Path != "./tmp.db" {
		t.Fatalf("expected storage path override")
	}
	if cfg.Storage.MaxRevisions != 7 {
		t.Fatalf("expected max revisions override")
	}
	if cfg.Notes.AutoSave {
		t.Fatalf("expected auto save override")
	}
	if cfg.Notes.AutoSaveDelay != 250 {
		t.Fatalf("expected auto save delay override")
	}
	if cfg.Speech.Mode != "bus" {
		t.Fatalf("expected speech mode override")
	}
	if len(cfg.Speech.Phrases) != 2 || cfg.Speech.Phrases[1] != "stop recording" {
		t.Fatalf("unexpected phrases %v", cfg.Speech.Phrases)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend":   func(c *Config) { c.Storage.Backend = "redis" },
		"empty notes key":   func(c *Config) { c.Notes.Key = "" },
		"zero delay":        func(c *Config) { c.Notes.AutoSaveDelay = 0 },
		"exec w/o command":  func(c *Config) { c.Speech.Mode = "exec" },
		"bus mode w/o bus":  func(c *Config) { c.Speech.Mode = "bus" },
		"blank stop phrase": func(c *Config) { c.Speech.StopPhrase = "  " },
		"tts w/o bus":       func(c *Config) { c.TTS.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestApplyEnvIgnoresUnparsableValues(t *testing.T) {
	env := map[string]string{
		"LOQA_SCRIBE_HTTP_PORT":       "eighty",
		"LOQA_SCRIBE_NOTES_AUTO_SAVE": "maybe",
		"LOQA_SCRIBE_BUS_SERVERS":     " , ",
		"LOQA_SCRIBE_NOTES_KEY":       "   ",
	}
	cfg := Default()
	applyEnv(&cfg, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	def := Default()
	if cfg.HTTP.Port != def.HTTP.Port || cfg.Notes.AutoSave != def.Notes.AutoSave {
		t.Fatalf("unparsable values must not override defaults: %+v", cfg)
	}
	if len(cfg.Bus.Servers) != 1 || cfg.Notes.Key != def.Notes.Key {
		t.Fatalf("blank values must not override defaults: %+v", cfg)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Notes.Key = ""
	cfg.Storage.Backend = "redis"
	err := validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"notes.key", "storage.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}
