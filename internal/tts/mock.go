package tts

import (
	"context"
	"strings"
)

// msPerWord approximates a relaxed reading pace.
const msPerWord = 300

type mockSynth struct {
	sampleRate int
	channels   int
	chunkMS    int
}

// NewMockSynth produces silence sized to the text at a reading pace, split
// into chunkMS slices.
func NewMockSynth(sampleRate, channels, chunkMS int) Synthesizer {
	m := &mockSynth{sampleRate: 22050, channels: 1, chunkMS: 400}
	if sampleRate > 0 {
		m.sampleRate = sampleRate
	}
	if channels > 0 {
		m.channels = channels
	}
	if chunkMS > 0 {
		m.chunkMS = chunkMS
	}
	return m
}

func (m *mockSynth) Synthesize(ctx context.Context, text, _ string, emit func(Chunk) error) error {
	words := max(len(strings.Fields(text)), 1)
	n := (words*msPerWord + m.chunkMS - 1) / m.chunkMS
	size := m.sampleRate * m.chunkMS / 1000 * m.channels * 2

	for i := range n {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := emit(Chunk{
			SampleRate: m.sampleRate,
			Channels:   m.channels,
			PCM:        make([]byte, size),
			Final:      i == n-1,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
