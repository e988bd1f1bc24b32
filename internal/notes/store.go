package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-scribe/internal/storage"
)

// ErrNoteNotFound is returned by operations addressing an unknown note id.
var ErrNoteNotFound = errors.New("note not found")

// Storage persists the serialized collection as a single blob.
type Storage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
}

type kvStorage struct {
	kv  storage.KV
	key string
}

// KVStorage stores the collection under a fixed key of kv.
func KVStorage(kv storage.KV, key string) Storage {
	return &kvStorage{kv: kv, key: key}
}

func (s *kvStorage) Load(ctx context.Context) ([]byte, error) {
	return s.kv.Get(ctx, s.key)
}

func (s *kvStorage) Save(ctx context.Context, blob []byte) error {
	return s.kv.Put(ctx, s.key, blob)
}

// Op names the mutation reported in a Change.
type Op string

const (
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpRename    Op = "rename"
	OpDelete    Op = "delete"
	OpDuplicate Op = "duplicate"
)

// Change describes a persisted mutation.
type Change struct {
	ID        string
	Op        Op
	Title     string
	WordCount int
	CharCount int
}

// Store is the in-memory note collection (newest first) with an active-note
// pointer. Every mutation except ScheduleAutoSave writes the whole
// collection before returning.
type Store struct {
	mu       sync.Mutex
	storage  Storage
	notes    []Note
	activeID string
	autoSave bool
	ready    bool

	debounce *debouncer
	opts     *options
	log      *slog.Logger
	tracer   trace.Tracer
	metrics  storeMetrics
}

func New(st Storage, opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		storage:  st,
		autoSave: o.autoSave,
		debounce: newDebouncer(o.delay, o.after),
		opts:     o,
		log:      logger.With(slog.String("component", "note-store")),
		tracer:   otel.Tracer(instrumentationName),
		metrics:  newStoreMetrics(),
	}
}

// Init loads the persisted collection. Missing or corrupt data is treated
// as an empty collection; an empty collection gets one fresh note, so the
// store is never observably empty right after Init. Calling Init again is a
// no-op.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return nil
	}
	s.ready = true
	s.notes = s.load(ctx)
	if len(s.notes) > 0 {
		s.activeID = s.notes[0].ID
		s.mu.Unlock()
		return nil
	}
	note, err := s.createLocked(ctx)
	s.mu.Unlock()
	s.emit(Change{ID: note.ID, Op: OpCreate, Title: note.Title})
	return err
}

func (s *Store) load(ctx context.Context) []Note {
	blob, err := s.storage.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Debug("no persisted notes")
		} else {
			s.log.Warn("failed to read persisted notes", slogError(err))
		}
		return nil
	}
	var loaded []Note
	if err := json.Unmarshal(blob, &loaded); err != nil {
		s.log.Warn("discarding unreadable notes blob", slogError(err))
		return nil
	}

	seen := make(map[string]struct{}, len(loaded))
	notes := make([]Note, 0, len(loaded))
	for _, n := range loaded {
		if n.ID == "" {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		notes = append(notes, n)
	}
	return notes
}

// Notes returns a copy of the collection, newest first.
func (s *Store) Notes() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Note(nil), s.notes...)
}

// Get returns the note with id.
func (s *Store) Get(id string) (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.notes[i], true
	}
	return Note{}, false
}

// Active resolves the active pointer. A pointer naming a missing note falls
// back to the first note; an empty collection yields false.
func (s *Store) Active() (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.activeIndexLocked()
	if i < 0 {
		return Note{}, false
	}
	return s.notes[i], true
}

// ActiveID returns the raw active pointer, which may be empty.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// SetActive points the active selection at id. It does not flush a pending
// auto-save.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return ErrNoteNotFound
	}
	s.activeID = id
	return nil
}

// CreateNote prepends an empty note titled Note_<n>, persists immediately and
// makes it active.
func (s *Store) CreateNote(ctx context.Context) (Note, error) {
	s.mu.Lock()
	note, err := s.createLocked(ctx)
	s.mu.Unlock()
	s.emit(Change{ID: note.ID, Op: OpCreate, Title: note.Title})
	return note, err
}

func (s *Store) createLocked(ctx context.Context) (Note, error) {
	date := formatDate(s.opts.clock())
	note := Note{
		ID:        s.opts.newID(),
		Title:     fmt.Sprintf("Note_%d", len(s.notes)+1),
		CreatedAt: date,
		UpdatedAt: date,
	}
	s.notes = append([]Note{note}, s.notes...)
	s.activeID = note.ID
	return note, s.persistLocked(ctx, OpCreate)
}

// UpdateContent replaces the active note's content, recomputes its counters
// and persists immediately. Without an active note it does nothing.
func (s *Store) UpdateContent(ctx context.Context, content string) error {
	s.mu.Lock()
	i := s.activeIndexLocked()
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	return s.updateLocked(ctx, i, content)
}

// updateNote is the deferred form of UpdateContent, bound to the note that
// was active when the save was scheduled.
func (s *Store) updateNote(ctx context.Context, id, content string) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		s.log.Debug("dropping auto-save for removed note", slog.String("note_id", id))
		return
	}
	if err := s.updateLocked(ctx, i, content); err != nil {
		s.log.Warn("auto-save failed", slog.String("note_id", id), slogError(err))
	}
}

// updateLocked releases s.mu before returning.
func (s *Store) updateLocked(ctx context.Context, i int, content string) error {
	note := s.notes[i].withContent(content, formatDate(s.opts.clock()))
	s.notes[i] = note
	err := s.persistLocked(ctx, OpUpdate)
	s.mu.Unlock()
	s.emit(Change{ID: note.ID, Op: OpUpdate, Title: note.Title, WordCount: note.WordCount, CharCount: note.CharCount})
	return err
}

// ScheduleAutoSave coalesces rapid edits: any pending save is cancelled and
// a new one fires after the quiet period, applying content to the note that
// is active now. It does nothing while auto-save is disabled.
func (s *Store) ScheduleAutoSave(content string) {
	s.mu.Lock()
	if !s.autoSave {
		s.mu.Unlock()
		return
	}
	i := s.activeIndexLocked()
	if i < 0 {
		s.mu.Unlock()
		return
	}
	id := s.notes[i].ID
	s.mu.Unlock()

	ctx := context.Background()
	s.metrics.scheduled.Add(ctx, 1)
	if s.debounce.Schedule(func() { s.updateNote(context.Background(), id, content) }) {
		s.metrics.coalesced.Add(ctx, 1)
	}
}

// PendingAutoSave reports whether a debounced save is outstanding.
func (s *Store) PendingAutoSave() bool {
	return s.debounce.Pending()
}

// Flush runs a pending debounced save immediately. Only graceful shutdown
// uses it; switching notes or unmounting never flushes.
func (s *Store) Flush() bool {
	return s.debounce.Flush()
}

// Close drops a pending debounced save without running it.
func (s *Store) Close() {
	s.debounce.Cancel()
}

func (s *Store) AutoSave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoSave
}

// SetAutoSave toggles auto-save. A save already scheduled still fires.
func (s *Store) SetAutoSave(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSave = enabled
}

func (s *Store) RenameNote(ctx context.Context, id, title string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNoteNotFound
	}
	s.notes[i].Title = title
	note := s.notes[i]
	err := s.persistLocked(ctx, OpRename)
	s.mu.Unlock()
	s.emit(Change{ID: note.ID, Op: OpRename, Title: note.Title, WordCount: note.WordCount, CharCount: note.CharCount})
	return err
}

// DeleteNote removes id. Deleting the active note selects the new first
// note, or clears the selection when the collection becomes empty.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNoteNotFound
	}
	removed := s.notes[i]
	s.notes = append(s.notes[:i:i], s.notes[i+1:]...)
	if s.activeID == id {
		s.activeID = ""
		if len(s.notes) > 0 {
			s.activeID = s.notes[0].ID
		}
	}
	err := s.persistLocked(ctx, OpDelete)
	s.mu.Unlock()
	s.emit(Change{ID: removed.ID, Op: OpDelete, Title: removed.Title})
	return err
}

// DuplicateNote prepends a copy of id with a fresh id, current dates and a
// "(copy)" title suffix. The active selection is unchanged.
func (s *Store) DuplicateNote(ctx context.Context, id string) (Note, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return Note{}, ErrNoteNotFound
	}
	date := formatDate(s.opts.clock())
	dup := s.notes[i]
	dup.ID = s.opts.newID()
	dup.Title = dup.Title + " (copy)"
	dup.CreatedAt = date
	dup.UpdatedAt = date
	s.notes = append([]Note{dup}, s.notes...)
	err := s.persistLocked(ctx, OpDuplicate)
	s.mu.Unlock()
	s.emit(Change{ID: dup.ID, Op: OpDuplicate, Title: dup.Title, WordCount: dup.WordCount, CharCount: dup.CharCount})
	return dup, err
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.notes {
		if s.notes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) activeIndexLocked() int {
	if i := s.indexLocked(s.activeID); i >= 0 {
		return i
	}
	if len(s.notes) > 0 {
		return 0
	}
	return -1
}

// persistLocked writes the whole collection. In-memory state is kept when
// the write fails; the error is returned to the caller.
func (s *Store) persistLocked(ctx context.Context, op Op) error {
	ctx, span := s.tracer.Start(ctx, "notes.persist", trace.WithAttributes(
		attribute.String("notes.op", string(op)),
		attribute.Int("notes.count", len(s.notes)),
	))
	defer span.End()

	notes := s.notes
	if notes == nil {
		notes = []Note{}
	}
	blob, err := json.Marshal(notes)
	if err == nil {
		err = s.storage.Save(ctx, blob)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		s.metrics.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", string(op))))
		s.log.Error("failed to persist notes", slog.String("op", string(op)), slogError(err))
		return fmt.Errorf("persist notes: %w", err)
	}
	s.metrics.writes.Add(ctx, 1, metric.WithAttributes(attribute.String("op", string(op))))
	return nil
}

func (s *Store) emit(c Change) {
	if s.opts.onChange == nil || c.ID == "" {
		return
	}
	s.opts.onChange(c)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
