package tts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
)

// ErrEmptyText is returned by ReadAloud when there is nothing to read.
var ErrEmptyText = errors.New("nothing to read aloud")

// Publisher is the subset of bus.Client the service needs.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// ReadRequest asks for a note to be read aloud on a playback session.
type ReadRequest struct {
	SessionID string
	NoteID    string
	Text      string
}

type reading struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Service streams synthesized audio for read-aloud requests. At most one
// read is in flight per session; a new request replaces the old one.
type Service struct {
	cfg    config.TTSConfig
	pub    Publisher
	synth  Synthesizer
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]*reading
}

func NewService(parent context.Context, cfg config.TTSConfig, pub Publisher, synth Synthesizer, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		pub:      pub,
		synth:    synth,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "tts-service")),
		inflight: make(map[string]*reading),
	}
}

// ReadAloud starts streaming req.Text and returns without waiting for
// playback. Chunks go to tts.audio.out and a status to tts.done.
func (s *Service) ReadAloud(req ReadRequest) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	s.mu.Lock()
	if prev := s.inflight[req.SessionID]; prev != nil {
		prev.cancel()
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	r := &reading{cancel: cancel, done: make(chan struct{})}
	s.inflight[req.SessionID] = r
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(r.done)
		defer cancel()
		err := s.stream(ctx, req)
		s.finish(req, r, err)
	}()
	return nil
}

// Stop cancels the in-flight read of sessionID. It reports whether one was
// running.
func (s *Service) Stop(sessionID string) bool {
	s.mu.Lock()
	r := s.inflight[sessionID]
	s.mu.Unlock()
	if r == nil {
		return false
	}
	r.cancel()
	<-r.done
	return true
}

// Active reports whether sessionID has a read in flight.
func (s *Service) Active(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[sessionID] != nil
}

func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) stream(ctx context.Context, req ReadRequest) error {
	sequence := 0
	return s.synth.Synthesize(ctx, req.Text, s.cfg.Voice, func(c Chunk) error {
		packet := protocol.AudioChunk{
			SessionID:  req.SessionID,
			NoteID:     req.NoteID,
			SampleRate: c.SampleRate,
			Channels:   c.Channels,
			Sequence:   sequence,
			PCM:        c.PCM,
			Final:      c.Final,
		}
		sequence++
		if err := s.pub.PublishJSON(protocol.SubjectTTSAudio, packet); err != nil {
			s.logger.Warn("failed to publish tts chunk", slogError(err))
		}
		return nil
	})
}

func (s *Service) finish(req ReadRequest, r *reading, err error) {
	s.mu.Lock()
	if s.inflight[req.SessionID] == r {
		delete(s.inflight, req.SessionID)
	}
	s.mu.Unlock()

	status := protocol.TTSStatus{
		SessionID: req.SessionID,
		NoteID:    req.NoteID,
		Completed: err == nil,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		status.Error = err.Error()
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("read-aloud failed", slog.String("session_id", req.SessionID), slogError(err))
		}
	}
	if perr := s.pub.PublishJSON(protocol.SubjectTTSDone, status); perr != nil {
		s.logger.Warn("failed to publish tts status", slogError(perr))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
