package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// ExecCapability runs an external recognizer process per capture run. The
// process prints one JSON object per line on stdout:
//
//	{"type":"result","results":[{"text":"hello","final":false}]}
//	{"type":"error","code":"no-speech"}
//
// The run ends when the process exits.
type ExecCapability struct {
	cmd []string
	log *slog.Logger
}

func NewExecCapability(command string, log *slog.Logger) (*ExecCapability, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("speech command is empty")
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &ExecCapability{cmd: args, log: log.With(slog.String("component", "speech-exec"))}, nil
}

func (c *ExecCapability) NewRecognizer(opts Options, h Handler) (Recognizer, error) {
	args := append([]string{}, c.cmd[1:]...)
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.InterimResults {
		args = append(args, "--interim")
	}
	if opts.Continuous {
		args = append(args, "--continuous")
	}
	return &execRecognizer{base: c.cmd[0], args: args, handler: h, log: c.log}, nil
}

type execLine struct {
	Type    string   `json:"type"`
	Results []Result `json:"results,omitempty"`
	Code    string   `json:"code,omitempty"`
}

type execRecognizer struct {
	base    string
	args    []string
	handler Handler
	log     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

func (r *execRecognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, r.base, r.args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 2 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start speech command: %w", err)
	}

	r.cancel = cancel
	r.wg.Add(1)
	go r.run(ctx, cancel, cmd, stdout, &stderr)
	return nil
}

func (r *execRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return nil
}

func (r *execRecognizer) Close() error {
	r.mu.Lock()
	r.closed = true
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()
	r.wg.Wait()
	return nil
}

func (r *execRecognizer) run(ctx context.Context, cancel context.CancelFunc, cmd *exec.Cmd, stdout io.Reader, stderr *bytes.Buffer) {
	defer r.wg.Done()
	defer r.handler.HandleEnd()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg execLine
		if err := json.Unmarshal(line, &msg); err != nil {
			r.log.Warn("failed to decode recognizer output", slogError(err))
			continue
		}
		switch msg.Type {
		case "result":
			if len(msg.Results) > 0 {
				r.handler.HandleResults(msg.Results)
			}
		case "error":
			r.handler.HandleError(ErrorCode(msg.Code))
		default:
			r.log.Debug("ignoring recognizer message", slog.String("type", msg.Type))
		}
	}

	err := cmd.Wait()
	stopped := ctx.Err() != nil
	r.mu.Lock()
	if !stopped && r.cancel != nil {
		// natural exit of the current run
		r.cancel = nil
	}
	r.mu.Unlock()
	cancel()

	if err != nil && !stopped {
		r.log.Warn("speech command failed", slogError(err), slog.String("stderr", stderr.String()))
		r.handler.HandleError(ErrAudioCapture)
	}
}
