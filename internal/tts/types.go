// Package tts reads notes aloud for proof-reading by streaming synthesized
// PCM onto the bus.
package tts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-scribe/internal/config"
)

// Chunk is one slice of 16-bit little-endian PCM.
type Chunk struct {
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer turns text into audio. Synthesize calls emit for each chunk in
// order and returns when the text is done, ctx ends or emit fails.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, emit func(Chunk) error) error
}

// NewSynthesizer selects the backend named by cfg.Mode.
func NewSynthesizer(cfg config.TTSConfig, log *slog.Logger) (Synthesizer, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockSynth(cfg.SampleRate, cfg.Channels, cfg.ChunkDurationMS), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels, log)
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}
