package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	Traces       bool   `yaml:"traces"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Storage     StorageConfig   `yaml:"storage"`
	Notes       NotesConfig     `yaml:"notes"`
	Speech      SpeechConfig    `yaml:"speech"`
	TTS         TTSConfig       `yaml:"tts"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// StorageConfig selects the durable key-value backend holding the note blob.
type StorageConfig struct {
	Backend       string `yaml:"backend"` // sqlite, file, memory
	Path          string `yaml:"path"`
	MaxRevisions  int    `yaml:"max_revisions"`
	RetentionDays int    `yaml:"retention_days"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type NotesConfig struct {
	Key           string `yaml:"key"`
	AutoSave      bool   `yaml:"auto_save"`
	AutoSaveDelay int    `yaml:"auto_save_delay_ms"`
	PublishEvents bool   `yaml:"publish_events"`
}

type SpeechConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Mode       string   `yaml:"mode"` // mock, exec, bus
	Command    string   `yaml:"command"`
	Language   string   `yaml:"language"`
	StopPhrase string   `yaml:"stop_phrase"`
	SessionID  string   `yaml:"session_id"`
	Phrases    []string `yaml:"phrases"`
	PhraseGap  int      `yaml:"phrase_gap_ms"`
}

type TTSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Mode            string `yaml:"mode"`
	Command         string `yaml:"command"`
	Voice           string `yaml:"voice"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	ChunkDurationMS int    `yaml:"chunk_duration_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-scribe",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Storage: StorageConfig{
			Backend:       "sqlite",
			Path:          "./data/scribe.db",
			MaxRevisions:  50,
			RetentionDays: 30,
		},
		Notes: NotesConfig{
			Key:           "voicescribe_notes",
			AutoSave:      true,
			AutoSaveDelay: 800,
		},
		Speech: SpeechConfig{
			Enabled:    true,
			Mode:       "mock",
			Language:   "en-US",
			StopPhrase: "stop recording",
			SessionID:  "default",
			PhraseGap:  1500,
		},
		TTS: TTSConfig{
			Enabled:         false,
			Mode:            "mock",
			Voice:           "en-US",
			SampleRate:      22050,
			Channels:        1,
			ChunkDurationMS: 400,
		},
	}
}

// Load reads path over the defaults, then applies LOQA_SCRIBE_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	return cfg, validate(cfg)
}

const envPrefix = "LOQA_SCRIBE_"

// applyEnv overrides fields from the environment. Values that fail to parse
// are ignored, as are blank strings.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(target *string, key string) {
		if v, ok := lookup(envPrefix + key); ok && strings.TrimSpace(v) != "" {
			*target = v
		}
	}
	num := func(target *int, key string) { parseEnv(lookup, key, target, strconv.Atoi) }
	flag := func(target *bool, key string) { parseEnv(lookup, key, target, strconv.ParseBool) }
	list := func(target *[]string, key string) { parseEnv(lookup, key, target, splitList) }

	str(&cfg.RuntimeName, "RUNTIME_NAME")
	str(&cfg.Environment, "ENVIRONMENT")
	str(&cfg.HTTP.Bind, "HTTP_BIND")
	num(&cfg.HTTP.Port, "HTTP_PORT")

	str(&cfg.Telemetry.LogLevel, "TELEMETRY_LOG_LEVEL")
	str(&cfg.Telemetry.OTLPEndpoint, "TELEMETRY_OTLP_ENDPOINT")
	flag(&cfg.Telemetry.OTLPInsecure, "TELEMETRY_OTLP_INSECURE")
	flag(&cfg.Telemetry.Traces, "TELEMETRY_TRACES")

	flag(&cfg.Bus.Enabled, "BUS_ENABLED")
	flag(&cfg.Bus.Embedded, "BUS_EMBEDDED")
	num(&cfg.Bus.Port, "BUS_PORT")
	str(&cfg.Bus.StoreDir, "BUS_STORE_DIR")
	list(&cfg.Bus.Servers, "BUS_SERVERS")
	str(&cfg.Bus.Username, "BUS_USERNAME")
	str(&cfg.Bus.Password, "BUS_PASSWORD")
	str(&cfg.Bus.Token, "BUS_TOKEN")
	flag(&cfg.Bus.TLSInsecure, "BUS_TLS_INSECURE")
	num(&cfg.Bus.ConnectTimeout, "BUS_CONNECT_TIMEOUT_MS")

	str(&cfg.Storage.Backend, "STORAGE_BACKEND")
	str(&cfg.Storage.Path, "STORAGE_PATH")
	num(&cfg.Storage.MaxRevisions, "STORAGE_MAX_REVISIONS")
	num(&cfg.Storage.RetentionDays, "STORAGE_RETENTION_DAYS")
	flag(&cfg.Storage.VacuumOnStart, "STORAGE_VACUUM_ON_START")

	str(&cfg.Notes.Key, "NOTES_KEY")
	flag(&cfg.Notes.AutoSave, "NOTES_AUTO_SAVE")
	num(&cfg.Notes.AutoSaveDelay, "NOTES_AUTO_SAVE_DELAY_MS")
	flag(&cfg.Notes.PublishEvents, "NOTES_PUBLISH_EVENTS")

	flag(&cfg.Speech.Enabled, "SPEECH_ENABLED")
	str(&cfg.Speech.Mode, "SPEECH_MODE")
	str(&cfg.Speech.Command, "SPEECH_COMMAND")
	str(&cfg.Speech.Language, "SPEECH_LANGUAGE")
	str(&cfg.Speech.StopPhrase, "SPEECH_STOP_PHRASE")
	str(&cfg.Speech.SessionID, "SPEECH_SESSION_ID")
	list(&cfg.Speech.Phrases, "SPEECH_PHRASES")
	num(&cfg.Speech.PhraseGap, "SPEECH_PHRASE_GAP_MS")

	flag(&cfg.TTS.Enabled, "TTS_ENABLED")
	str(&cfg.TTS.Mode, "TTS_MODE")
	str(&cfg.TTS.Command, "TTS_COMMAND")
	str(&cfg.TTS.Voice, "TTS_VOICE")
	num(&cfg.TTS.SampleRate, "TTS_SAMPLE_RATE")
	num(&cfg.TTS.Channels, "TTS_CHANNELS")
	num(&cfg.TTS.ChunkDurationMS, "TTS_CHUNK_DURATION_MS")
}

func parseEnv[T any](lookup func(string) (string, bool), key string, target *T, parse func(string) (T, error)) {
	v, ok := lookup(envPrefix + key)
	if !ok {
		return
	}
	if parsed, err := parse(v); err == nil {
		*target = parsed
	}
}

// splitList parses a comma separated list, rejecting one with no entries.
func splitList(v string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("empty list")
	}
	return out, nil
}

// validate reports every problem at once.
func validate(cfg Config) error {
	var errs []error
	check := func(ok bool, msg string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(msg, args...))
		}
	}
	validPort := func(p int) bool { return p > 0 && p <= 65535 }

	check(cfg.RuntimeName != "", "runtime_name must not be empty")
	check(validPort(cfg.HTTP.Port), "http.port %d out of range", cfg.HTTP.Port)

	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			check(validPort(cfg.Bus.Port), "bus.port %d out of range for the embedded server", cfg.Bus.Port)
		} else {
			check(len(cfg.Bus.Servers) > 0, "bus.servers must list at least one server")
		}
	}

	switch cfg.Storage.Backend {
	case "sqlite", "file":
		check(cfg.Storage.Path != "", "storage.path is required for the %s backend", cfg.Storage.Backend)
	case "memory":
	default:
		check(false, "unknown storage.backend %q (want sqlite, file or memory)", cfg.Storage.Backend)
	}
	check(cfg.Storage.MaxRevisions >= 0, "storage.max_revisions must not be negative")
	check(cfg.Storage.RetentionDays >= 0, "storage.retention_days must not be negative")

	check(cfg.Notes.Key != "", "notes.key must not be empty")
	check(cfg.Notes.AutoSaveDelay > 0, "notes.auto_save_delay_ms must be positive")

	if cfg.Speech.Enabled {
		switch cfg.Speech.Mode {
		case "mock", "exec", "bus":
		default:
			check(false, "unknown speech.mode %q (want mock, exec or bus)", cfg.Speech.Mode)
		}
		check(cfg.Speech.Mode != "exec" || cfg.Speech.Command != "", "speech.command is required in exec mode")
		check(cfg.Speech.Mode != "bus" || cfg.Bus.Enabled, "speech.mode bus needs bus.enabled")
		check(strings.TrimSpace(cfg.Speech.StopPhrase) != "", "speech.stop_phrase must not be blank")
	}

	if cfg.TTS.Enabled {
		check(cfg.TTS.Mode == "mock" || cfg.TTS.Mode == "exec", "unknown tts.mode %q (want mock or exec)", cfg.TTS.Mode)
		check(cfg.TTS.Mode != "exec" || cfg.TTS.Command != "", "tts.command is required in exec mode")
		check(cfg.TTS.SampleRate > 0, "tts.sample_rate must be positive")
		check(cfg.TTS.Channels > 0, "tts.channels must be positive")
		check(cfg.Bus.Enabled, "tts needs bus.enabled")
	}
	return errors.Join(errs...)
}
