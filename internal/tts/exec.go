package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execSynth runs an external synthesizer once per read. It receives
//
//	{"text": "...", "voice": "...", "sample_rate": 22050, "channels": 1}
//
// on stdin and answers with one JSON object per line:
//
//	{"pcm_base64": "...", "final": false}
type execSynth struct {
	argv       []string
	sampleRate int
	channels   int
	log        *slog.Logger

	// one process at a time; a second read waits for the first to exit
	mu sync.Mutex
}

type synthInput struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type synthLine struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

func NewExecSynth(command string, sampleRate, channels int, log *slog.Logger) (Synthesizer, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	argv, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("tts command is empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &execSynth{
		argv:       argv,
		sampleRate: sampleRate,
		channels:   channels,
		log:        log.With(slog.String("component", "tts-exec")),
	}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, text, voice string, emit func(Chunk) error) error {
	input, err := json.Marshal(synthInput{Text: text, Voice: voice, SampleRate: e.sampleRate, Channels: e.channels})
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start tts command: %w", err)
	}

	readErr := e.read(stdout, emit)
	if readErr != nil {
		// unblock the child before waiting on it
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case readErr != nil:
		return readErr
	case waitErr != nil:
		e.log.Debug("tts command failed", slog.String("stderr", stderr.String()))
		return fmt.Errorf("tts command: %w", waitErr)
	}
	return nil
}

func (e *execSynth) read(r io.Reader, emit func(Chunk) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var line synthLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return fmt.Errorf("decode tts output: %w", err)
		}
		pcm, err := base64.StdEncoding.DecodeString(line.PCMBase64)
		if err != nil {
			return fmt.Errorf("decode tts pcm: %w", err)
		}
		if err := emit(Chunk{SampleRate: e.sampleRate, Channels: e.channels, PCM: pcm, Final: line.Final}); err != nil {
			return err
		}
	}
	return scanner.Err()
}
