package speech

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Sink receives finalized dictation text.
type Sink func(text string)

type sessionOptions struct {
	logger     *slog.Logger
	language   string
	stopPhrase string
	onChange   func(State)
}

type Option func(*sessionOptions)

func WithLogger(logger *slog.Logger) Option {
	return func(o *sessionOptions) { o.logger = logger }
}

// WithLanguage sets the recognition language (BCP 47, default en-US).
func WithLanguage(lang string) Option {
	return func(o *sessionOptions) {
		if lang != "" {
			o.language = lang
		}
	}
}

// WithStopPhrase replaces the spoken stop command.
func WithStopPhrase(phrase string) Option {
	return func(o *sessionOptions) {
		if phrase != "" {
			o.stopPhrase = phrase
		}
	}
}

// WithOnChange registers a callback invoked after each state change, in
// event order and outside the state lock.
func WithOnChange(fn func(State)) Option {
	return func(o *sessionOptions) { o.onChange = fn }
}

// Session applies recognizer callbacks and user commands to a State through
// Machine.Step and performs the resulting effects.
//
// The sink and OnChange callback run outside the state lock but are
// serialized in event order; they must not call back into the Session.
type Session struct {
	mu      sync.Mutex
	state   State
	machine Machine
	rec     Recognizer

	deliverMu sync.Mutex
	sink      Sink
	onChange  func(State)

	log     *slog.Logger
	metrics sessionMetrics
}

// NewSession builds a session over capability. A nil capability, or one
// that fails to construct a recognizer, leaves the session permanently
// unsupported.
func NewSession(capability Capability, sink Sink, opts ...Option) *Session {
	o := &sessionOptions{language: "en-US", stopPhrase: DefaultStopPhrase}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Session{
		machine:  Machine{StopPhrase: o.stopPhrase},
		sink:     sink,
		onChange: o.onChange,
		log:      logger.With(slog.String("component", "speech-session")),
		metrics:  newSessionMetrics(),
	}

	if capability != nil {
		rec, err := capability.NewRecognizer(Options{
			Language:       o.language,
			Continuous:     true,
			InterimResults: true,
		}, s)
		switch {
		case err == nil:
			s.rec = rec
		case errors.Is(err, ErrUnsupported):
			s.log.Info("speech recognition not supported")
		default:
			s.log.Warn("failed to create recognizer", slogError(err))
		}
	}
	s.state = NewState(s.rec != nil)
	return s
}

func (s *Session) Start()  { s.dispatch(Event{Kind: EventStart}) }
func (s *Session) Stop()   { s.dispatch(Event{Kind: EventStop}) }
func (s *Session) Toggle() { s.dispatch(Event{Kind: EventToggle}) }

// HandleResults implements Handler.
func (s *Session) HandleResults(batch []Result) {
	s.dispatch(Event{Kind: EventResults, Results: batch})
}

// HandleEnd implements Handler.
func (s *Session) HandleEnd() { s.dispatch(Event{Kind: EventEnd}) }

// HandleError implements Handler.
func (s *Session) HandleError(code ErrorCode) {
	s.metrics.errors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("code", string(code))))
	s.dispatch(Event{Kind: EventError, Code: code})
}

// Close suppresses restart and releases the recognizer. Later calls on the
// session have no effect.
func (s *Session) Close() {
	s.dispatch(Event{Kind: EventClose})
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) dispatch(e Event) {
	s.mu.Lock()
	prev := s.state
	next, fx := s.machine.Step(prev, e)
	s.state = next
	released := s.applyLocked(e, fx)
	s.deliverMu.Lock()
	s.mu.Unlock()

	s.deliver(prev, next, fx)
	s.deliverMu.Unlock()

	if fx.ReleaseRecognizer {
		s.release(released)
	}
}

// applyLocked performs recognizer effects. Release is returned to the caller
// and happens after the state lock is dropped, since a recognizer may wait
// for its callback goroutines while closing.
func (s *Session) applyLocked(e Event, fx Effects) Recognizer {
	ctx := context.Background()
	if fx.Command {
		s.metrics.commands.Add(ctx, 1)
		s.log.Info("stop command recognized")
	}
	if s.rec == nil {
		return nil
	}
	switch {
	case fx.StartRecognizer:
		if err := s.rec.Start(); err != nil {
			s.log.Warn("recognizer start failed", slogError(err))
		}
	case fx.RestartRecognizer:
		s.metrics.restarts.Add(ctx, 1)
		if err := s.rec.Start(); err != nil {
			s.log.Warn("recognizer restart failed", slogError(err))
		}
	case fx.StopRecognizer:
		if err := s.rec.Stop(); err != nil {
			s.log.Debug("recognizer stop failed", slogError(err))
		}
	case fx.ReleaseRecognizer:
		rec := s.rec
		s.rec = nil
		return rec
	}
	if e.Kind == EventError && !e.Code.Transient() {
		s.log.Warn("recognizer error ended session", slog.String("code", string(e.Code)))
	}
	return nil
}

func (s *Session) deliver(prev, next State, fx Effects) {
	if fx.Deliver != "" {
		s.metrics.finals.Add(context.Background(), 1)
		if s.sink != nil {
			s.sink(fx.Deliver)
		}
	}
	if s.onChange != nil && prev != next {
		s.onChange(next)
	}
}

func (s *Session) release(rec Recognizer) {
	if rec != nil {
		if err := rec.Stop(); err != nil {
			s.log.Debug("recognizer stop failed", slogError(err))
		}
		if err := rec.Close(); err != nil {
			s.log.Warn("recognizer close failed", slogError(err))
		}
	}
	s.dispatch(Event{Kind: EventReleased})
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
