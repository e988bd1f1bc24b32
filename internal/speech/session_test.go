package speech

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	mu       sync.Mutex
	starts   int
	stops    int
	closes   int
	startErr error
	handler  Handler
	opts     Options
}

func (f *fakeRecognizer) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeRecognizer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeRecognizer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeRecognizer) counts() (starts, stops, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.closes
}

type fakeCapability struct {
	rec *fakeRecognizer
	err error
}

func (c *fakeCapability) NewRecognizer(opts Options, h Handler) (Recognizer, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.rec.handler = h
	c.rec.opts = opts
	return c.rec, nil
}

type sinkRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *sinkRecorder) sink(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *sinkRecorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *fakeRecognizer, *sinkRecorder) {
	t.Helper()
	rec := &fakeRecognizer{}
	out := &sinkRecorder{}
	s := NewSession(&fakeCapability{rec: rec}, out.sink, opts...)
	t.Cleanup(s.Close)
	return s, rec, out
}

func TestSessionStartStop(t *testing.T) {
	s, rec, _ := newTestSession(t, WithLanguage("de-DE"))
	assert.Equal(t, "de-DE", rec.opts.Language)
	assert.True(t, rec.opts.Continuous)
	assert.True(t, rec.opts.InterimResults)
	require.True(t, s.Snapshot().Supported)

	s.Start()
	s.Start()
	starts, _, _ := rec.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, PhaseListening, s.Snapshot().Phase)

	s.Stop()
	s.Stop()
	_, stops, _ := rec.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)
}

func TestSessionDeliversFinalText(t *testing.T) {
	s, rec, out := newTestSession(t)
	s.Start()

	rec.handler.HandleResults([]Result{{Text: "hello wor"}})
	assert.Equal(t, "hello wor", s.Snapshot().InterimText)
	assert.Empty(t, out.got())

	rec.handler.HandleResults([]Result{{Text: "hello world", Final: true}})
	assert.Equal(t, []string{"hello world"}, out.got())
	assert.Empty(t, s.Snapshot().InterimText)
}

func TestSessionStopCommand(t *testing.T) {
	s, rec, out := newTestSession(t)
	s.Start()

	rec.handler.HandleResults([]Result{{Text: "Stop Recording", Final: true}})
	assert.Empty(t, out.got())
	snap := s.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.InterimText)
	_, stops, _ := rec.counts()
	assert.Equal(t, 1, stops)
}

func TestSessionAutoRestart(t *testing.T) {
	s, rec, _ := newTestSession(t)
	s.Start()

	rec.handler.HandleEnd()
	rec.handler.HandleEnd()
	starts, _, _ := rec.counts()
	assert.Equal(t, 3, starts)
	assert.Equal(t, PhaseListening, s.Snapshot().Phase)

	s.Stop()
	rec.handler.HandleEnd()
	starts, _, _ = rec.counts()
	assert.Equal(t, 3, starts, "end after stop must not restart")
	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)
}

func TestSessionRestartFailureIsSwallowed(t *testing.T) {
	s, rec, _ := newTestSession(t)
	s.Start()
	rec.mu.Lock()
	rec.startErr = errors.New("busy")
	rec.mu.Unlock()

	rec.handler.HandleEnd()
	assert.Equal(t, PhaseListening, s.Snapshot().Phase)
}

func TestSessionFatalError(t *testing.T) {
	s, rec, _ := newTestSession(t)
	s.Start()

	rec.handler.HandleError(ErrNoSpeech)
	assert.Equal(t, PhaseListening, s.Snapshot().Phase)

	rec.handler.HandleError(ErrNotAllowed)
	snap := s.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, PermissionDenied, snap.Permission)

	rec.handler.HandleEnd()
	starts, _, _ := rec.counts()
	assert.Equal(t, 1, starts)
}

func TestSessionUnsupported(t *testing.T) {
	out := &sinkRecorder{}
	for name, capability := range map[string]Capability{
		"nil":         nil,
		"unsupported": &fakeCapability{err: ErrUnsupported},
		"failing":     &fakeCapability{err: errors.New("no device")},
	} {
		t.Run(name, func(t *testing.T) {
			s := NewSession(capability, out.sink)
			defer s.Close()
			assert.False(t, s.Snapshot().Supported)
			s.Start()
			s.Toggle()
			assert.Equal(t, PhaseIdle, s.Snapshot().Phase)
		})
	}
}

func TestSessionClose(t *testing.T) {
	var phases []Phase
	var mu sync.Mutex
	s, rec, out := newTestSession(t, WithOnChange(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, st.Phase)
	}))
	s.Start()
	s.Close()
	s.Close()

	_, stops, closes := rec.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, 1, closes)
	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)

	rec.handler.HandleResults([]Result{{Text: "late", Final: true}})
	rec.handler.HandleEnd()
	s.Start()
	assert.Empty(t, out.got())
	starts, _, _ := rec.counts()
	assert.Equal(t, 1, starts)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{PhaseListening, PhaseStopping, PhaseIdle}, phases)
}

func TestSessionWithMockCapability(t *testing.T) {
	out := &sinkRecorder{}
	capability := &MockCapability{
		Phrases: []string{"first dictated phrase", "second one", "stop recording"},
		Gap:     4 * time.Millisecond,
	}
	s := NewSession(capability, out.sink)
	defer s.Close()

	s.Start()
	require.Eventually(t, func() bool {
		return s.Snapshot().Phase == PhaseIdle
	}, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, []string{"first dictated phrase", "second one"}, out.got())
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
