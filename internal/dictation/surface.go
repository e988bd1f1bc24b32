// Package dictation is the headless editing surface: it holds the active
// note's draft, feeds it from a speech session and hands edits to the note
// store.
package dictation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/loqalabs/loqa-scribe/internal/notes"
	"github.com/loqalabs/loqa-scribe/internal/speech"
)

// ErrNotMounted is returned by speech controls while no session exists.
var ErrNotMounted = errors.New("dictation surface not mounted")

type Option func(*Surface)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Surface) { s.log = logger }
}

// WithSessionOptions are passed to every session the surface mounts.
func WithSessionOptions(opts ...speech.Option) Option {
	return func(s *Surface) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// Surface is the editable view of the active note.
type Surface struct {
	store       *notes.Store
	capability  speech.Capability
	sessionOpts []speech.Option
	log         *slog.Logger

	mu         sync.Mutex
	session    *speech.Session
	draft      string
	draftID    string
	pending    string
	hasPending bool
}

func New(store *notes.Store, capability speech.Capability, opts ...Option) *Surface {
	s := &Surface{store: store, capability: capability}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.log = s.log.With(slog.String("component", "dictation"))
	return s
}

// Mount loads the active note into the draft and creates a speech session
// whose content sink is Append. A session from an earlier mount is closed
// first so two recognizers never capture at once.
func (s *Surface) Mount() {
	s.mu.Lock()
	prev := s.session
	s.session = nil
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	session := speech.NewSession(s.capability, s.Append, s.sessionOpts...)

	s.mu.Lock()
	s.session = session
	s.reloadLocked()
	s.mu.Unlock()
	s.log.Debug("dictation surface mounted", slog.Bool("speech_supported", session.Snapshot().Supported))
}

// Unmount tears down the speech session. A pending auto-save is left to
// fire on its own schedule.
func (s *Surface) Unmount() {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()
	if session != nil {
		session.Close()
	}
}

// Session returns the mounted speech session, or nil.
func (s *Surface) Session() *speech.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Speech reports the session state; an unmounted surface reports an idle,
// unsupported session.
func (s *Surface) Speech() speech.State {
	if session := s.Session(); session != nil {
		return session.Snapshot()
	}
	return speech.NewState(false)
}

func (s *Surface) Toggle() error { return s.withSession((*speech.Session).Toggle) }
func (s *Surface) Start() error  { return s.withSession((*speech.Session).Start) }
func (s *Surface) Stop() error   { return s.withSession((*speech.Session).Stop) }

func (s *Surface) withSession(fn func(*speech.Session)) error {
	session := s.Session()
	if session == nil {
		return ErrNotMounted
	}
	fn(session)
	return nil
}

// Draft returns the current draft and the id of the note it belongs to.
func (s *Surface) Draft() (id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draftID, s.draft
}

// Append is the speech content sink. Text is joined to a non-empty draft
// with a single space unless the draft already ends in one.
func (s *Surface) Append(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	if s.draft != "" && !strings.HasSuffix(s.draft, " ") {
		s.draft += " "
	}
	s.draft += text
	draft := s.draft
	s.mu.Unlock()
	s.changed(draft)
}

// Edit replaces the draft, as typing does.
func (s *Surface) Edit(content string) {
	s.mu.Lock()
	s.draft = content
	s.mu.Unlock()
	s.changed(content)
}

// changed hands a new draft to the store: debounced when auto-save is on,
// written through at once when it is off.
func (s *Surface) changed(draft string) {
	if s.store.AutoSave() {
		s.store.ScheduleAutoSave(draft)
		return
	}
	if err := s.store.UpdateContent(context.Background(), draft); err != nil {
		s.log.Warn("draft write failed", slog.String("error", err.Error()))
	}
}

// Save writes the draft to the active note immediately.
func (s *Surface) Save(ctx context.Context) error {
	s.mu.Lock()
	draft := s.draft
	s.mu.Unlock()
	return s.store.UpdateContent(ctx, draft)
}

// Select switches the active note and loads its content into the draft. A
// pending auto-save is not flushed.
func (s *Surface) Select(id string) error {
	if err := s.store.SetActive(id); err != nil {
		return err
	}
	s.Reload()
	return nil
}

// Reload replaces the draft with the active note's stored content.
func (s *Surface) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadLocked()
}

func (s *Surface) reloadLocked() {
	note, ok := s.store.Active()
	if !ok {
		s.draftID, s.draft = "", ""
		return
	}
	s.draftID, s.draft = note.ID, note.Content
}

// Offer stores a one-shot insertion, replacing any unconsumed one.
func (s *Surface) Offer(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending, s.hasPending = text, true
}

// Pending returns the unconsumed insertion, if any.
func (s *Surface) Pending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, s.hasPending
}

// Consume merges the pending insertion into the draft verbatim and clears it.
func (s *Surface) Consume() bool {
	s.mu.Lock()
	if !s.hasPending {
		s.mu.Unlock()
		return false
	}
	s.draft += s.pending
	s.pending, s.hasPending = "", false
	draft := s.draft
	s.mu.Unlock()
	s.changed(draft)
	return true
}

// Acknowledge clears the pending insertion without merging it.
func (s *Surface) Acknowledge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending, s.hasPending = "", false
}
