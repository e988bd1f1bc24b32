package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-scribe/internal/storage"
)

const testKey = "voicescribe_notes"

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeTimers records scheduled callbacks so tests decide when they expire.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (f *fakeTimers) after(d time.Duration, fn func()) stopper {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	f.delays = append(f.delays, d)
	return t
}

// expire fires every timer that was not stopped.
func (f *fakeTimers) expire() int {
	f.mu.Lock()
	var live []*fakeTimer
	for _, t := range f.timers {
		if !t.stopped {
			t.stopped = true
			live = append(live, t)
		}
	}
	f.mu.Unlock()
	for _, t := range live {
		t.fn()
	}
	return len(live)
}

type failingStorage struct {
	blob []byte
	err  error
}

func (f *failingStorage) Load(context.Context) ([]byte, error) { return f.blob, nil }
func (f *failingStorage) Save(context.Context, []byte) error   { return f.err }

func fixedClock() time.Time {
	return time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("note-%d", n)
	}
}

func newTestStore(t *testing.T, kv storage.KV, opts ...Option) (*Store, *fakeTimers) {
	t.Helper()
	timers := &fakeTimers{}
	base := []Option{
		WithClock(fixedClock),
		WithIDGenerator(sequentialIDs()),
		withAfterFunc(timers.after),
	}
	s := New(KVStorage(kv, testKey), append(base, opts...)...)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(s.Close)
	return s, timers
}

func persisted(t *testing.T, kv storage.KV) []Note {
	t.Helper()
	blob, err := kv.Get(context.Background(), testKey)
	require.NoError(t, err)
	var notes []Note
	require.NoError(t, json.Unmarshal(blob, &notes))
	return notes
}

func TestCount(t *testing.T) {
	cases := []struct {
		content      string
		words, chars int
	}{
		{"hello world", 2, 11},
		{"", 0, 0},
		{"  a  b ", 2, 7},
		{"line one\nline two", 4, 17},
		{"héllo", 1, 5},
	}
	for _, tc := range cases {
		words, chars := Count(tc.content)
		assert.Equal(t, tc.words, words, "words of %q", tc.content)
		assert.Equal(t, tc.chars, chars, "chars of %q", tc.content)
	}
}

func TestInitEmptyStorageCreatesOneNote(t *testing.T) {
	kv := storage.NewMemory()
	s, _ := newTestStore(t, kv)

	notes := s.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, "Note_1", notes[0].Title)
	assert.Equal(t, "Mar 7, 2026", notes[0].CreatedAt)
	assert.Equal(t, notes[0].ID, s.ActiveID())

	assert.Len(t, persisted(t, kv), 1)
}

func TestInitLoadsPersistedCollection(t *testing.T) {
	kv := storage.NewMemory()
	blob := `[{"id":"b","title":"Second","content":"hi there","wordCount":2,"charCount":8},
	          {"id":"a","title":"First"},
	          {"id":"b","title":"Dup"}]`
	require.NoError(t, kv.Put(context.Background(), testKey, []byte(blob)))

	s, _ := newTestStore(t, kv)
	notes := s.Notes()
	require.Len(t, notes, 2)
	assert.Equal(t, "b", notes[0].ID)
	assert.Equal(t, "a", notes[1].ID)

	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "Second", active.Title)
	assert.Equal(t, 1, kv.Puts(), "loading must not rewrite storage")
}

func TestInitCorruptBlobLoadsAsEmpty(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Put(context.Background(), testKey, []byte("{not json")))

	s, _ := newTestStore(t, kv)
	notes := s.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, "Note_1", notes[0].Title)
}

func TestCreateNotePrependsAndActivates(t *testing.T) {
	kv := storage.NewMemory()
	s, _ := newTestStore(t, kv)
	ctx := context.Background()

	created, err := s.CreateNote(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Note_2", created.Title)

	notes := s.Notes()
	require.Len(t, notes, 2)
	assert.Equal(t, created.ID, notes[0].ID)
	assert.Equal(t, created.ID, s.ActiveID())
	assert.Equal(t, created.ID, persisted(t, kv)[0].ID)
}

func TestUpdateContentRecomputesCounts(t *testing.T) {
	kv := storage.NewMemory()
	s, _ := newTestStore(t, kv)

	require.NoError(t, s.UpdateContent(context.Background(), "hello dictated world"))
	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "hello dictated world", active.Content)
	assert.Equal(t, 3, active.WordCount)
	assert.Equal(t, 20, active.CharCount)

	stored := persisted(t, kv)
	require.Len(t, stored, 1)
	assert.Equal(t, 3, stored[0].WordCount)
}

func TestUpdateContentWithoutActiveNoteIsNoop(t *testing.T) {
	kv := storage.NewMemory()
	s, _ := newTestStore(t, kv)
	ctx := context.Background()

	active, _ := s.Active()
	require.NoError(t, s.DeleteNote(ctx, active.ID))
	puts := kv.Puts()

	require.NoError(t, s.UpdateContent(ctx, "ignored"))
	assert.Equal(t, puts, kv.Puts())
	assert.Empty(t, s.Notes())
}

func TestScheduleAutoSaveCoalesces(t *testing.T) {
	kv := storage.NewMemory()
	s, timers := newTestStore(t, kv)
	puts := kv.Puts()

	s.ScheduleAutoSave("a")
	s.ScheduleAutoSave("ab")
	s.ScheduleAutoSave("abc")
	assert.True(t, s.PendingAutoSave())
	assert.Equal(t, puts, kv.Puts(), "nothing is written before the quiet period")

	assert.Equal(t, 1, timers.expire())
	assert.Equal(t, puts+1, kv.Puts())
	assert.False(t, s.PendingAutoSave())

	stored := persisted(t, kv)
	assert.Equal(t, "abc", stored[0].Content)
	assert.Equal(t, 1, stored[0].WordCount)
	assert.Equal(t, 3, stored[0].CharCount)

	for _, d := range timers.delays {
		assert.Equal(t, DefaultAutoSaveDelay, d)
	}
}

func TestScheduleAutoSaveDisabled(t *testing.T) {
	kv := storage.NewMemory()
	s, timers := newTestStore(t, kv, WithAutoSave(false))

	s.ScheduleAutoSave("draft")
	assert.False(t, s.PendingAutoSave())
	assert.Zero(t, timers.expire())
}

func TestScheduleAutoSaveTargetsNoteActiveAtScheduling(t *testing.T) {
	kv := storage.NewMemory()
	s, timers := newTestStore(t, kv)
	ctx := context.Background()

	first, _ := s.Active()
	second, err := s.CreateNote(ctx)
	require.NoError(t, err)

	s.ScheduleAutoSave("for second")
	require.NoError(t, s.SetActive(first.ID))
	assert.True(t, s.PendingAutoSave(), "switching notes must not flush")

	timers.expire()
	got, ok := s.Get(second.ID)
	require.True(t, ok)
	assert.Equal(t, "for second", got.Content)
	got, _ = s.Get(first.ID)
	assert.Empty(t, got.Content)
}

func TestScheduledSaveForDeletedNoteIsDropped(t *testing.T) {
	kv := storage.NewMemory()
	s, timers := newTestStore(t, kv)
	ctx := context.Background()

	doomed, _ := s.Active()
	_, err := s.CreateNote(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetActive(doomed.ID))
	s.ScheduleAutoSave("lost")
	require.NoError(t, s.DeleteNote(ctx, doomed.ID))
	puts := kv.Puts()

	timers.expire()
	assert.Equal(t, puts, kv.Puts())
	_, ok := s.Get(doomed.ID)
	assert.False(t, ok)
}

func TestFlushAndClose(t *testing.T) {
	kv := storage.NewMemory()
	s, _ := newTestStore(t, kv)

	s.ScheduleAutoSave("flushed")
	assert.True(t, s.Flush())
	active, _ := s.Active()
	assert.Equal(t, "flushed", active.Content)
	assert.False(t, s.Flush())

	s.ScheduleAutoSave("dropped")
	s.Close()
	assert.False(t, s.PendingAutoSave())
	active, _ = s.Active()
	assert.Equal(t, "flushed", active.Content)
}

func TestDisablingAutoSaveKeepsPendingSave(t *testing.T) {
	kv := storage.NewMemory()
	s, timers := newTestStore(t, kv)

	s.ScheduleAutoSave("late")
	s.SetAutoSave(false)
	assert.False(t, s.AutoSave())
	timers.expire()

	active, _ := s.Active()
	assert.Equal(t, "late", active.Content)
}

func TestDeleteNote(t *testing.T) {
	ctx := context.Background()

	t.Run("sole note leaves no active note", func(t *testing.T) {
		s, _ := newTestStore(t, storage.NewMemory())
		only, _ := s.Active()
		require.NoError(t, s.DeleteNote(ctx, only.ID))

		assert.Empty(t, s.Notes())
		assert.Empty(t, s.ActiveID())
		_, ok := s.Active()
		assert.False(t, ok)
	})

	t.Run("active note falls back to first", func(t *testing.T) {
		s, _ := newTestStore(t, storage.NewMemory())
		oldest, _ := s.Active()
		middle, _ := s.CreateNote(ctx)
		newest, _ := s.CreateNote(ctx)

		require.NoError(t, s.DeleteNote(ctx, newest.ID))
		assert.Equal(t, middle.ID, s.ActiveID())

		require.NoError(t, s.DeleteNote(ctx, oldest.ID))
		assert.Equal(t, middle.ID, s.ActiveID())
	})

	t.Run("unknown id", func(t *testing.T) {
		kv := storage.NewMemory()
		s, _ := newTestStore(t, kv)
		puts := kv.Puts()
		assert.ErrorIs(t, s.DeleteNote(ctx, "missing"), ErrNoteNotFound)
		assert.Equal(t, puts, kv.Puts())
	})
}

func TestDuplicateNote(t *testing.T) {
	kv := storage.NewMemory()
	s, _ := newTestStore(t, kv)
	ctx := context.Background()

	require.NoError(t, s.UpdateContent(ctx, "some words here"))
	orig, _ := s.Active()

	dup, err := s.DuplicateNote(ctx, orig.ID)
	require.NoError(t, err)
	assert.NotEqual(t, orig.ID, dup.ID)
	assert.Equal(t, "Note_1 (copy)", dup.Title)
	assert.Equal(t, orig.Content, dup.Content)
	assert.Equal(t, 3, dup.WordCount)

	notes := s.Notes()
	require.Len(t, notes, 2)
	assert.Equal(t, dup.ID, notes[0].ID)
	assert.Equal(t, orig.ID, s.ActiveID(), "duplicate does not change the selection")

	_, err = s.DuplicateNote(ctx, "missing")
	assert.ErrorIs(t, err, ErrNoteNotFound)
}

func TestRenameNote(t *testing.T) {
	kv := storage.NewMemory()
	s, _ := newTestStore(t, kv)
	ctx := context.Background()

	active, _ := s.Active()
	require.NoError(t, s.RenameNote(ctx, active.ID, "Groceries"))
	assert.Equal(t, "Groceries", persisted(t, kv)[0].Title)
	assert.ErrorIs(t, s.RenameNote(ctx, "missing", "x"), ErrNoteNotFound)
}

func TestSetActiveUnknownID(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemory())
	before := s.ActiveID()
	assert.ErrorIs(t, s.SetActive("missing"), ErrNoteNotFound)
	assert.Equal(t, before, s.ActiveID())
}

func TestActiveFallsBackToFirstNote(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemory())
	_, err := s.CreateNote(context.Background())
	require.NoError(t, err)

	s.mu.Lock()
	s.activeID = "stale"
	s.mu.Unlock()

	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, s.Notes()[0].ID, active.ID)
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	st := &failingStorage{blob: []byte(`[{"id":"a","title":"A"}]`), err: errors.New("disk full")}
	s := New(st, WithClock(fixedClock), WithIDGenerator(sequentialIDs()))
	require.NoError(t, s.Init(context.Background()))

	err := s.UpdateContent(context.Background(), "kept in memory")
	require.Error(t, err)
	assert.ErrorIs(t, err, st.err)

	active, _ := s.Active()
	assert.Equal(t, "kept in memory", active.Content)
}

func TestOnChange(t *testing.T) {
	var changes []Change
	s, _ := newTestStore(t, storage.NewMemory(), WithOnChange(func(c Change) {
		changes = append(changes, c)
	}))
	ctx := context.Background()

	require.NoError(t, s.UpdateContent(ctx, "two words"))
	active, _ := s.Active()
	require.NoError(t, s.DeleteNote(ctx, active.ID))

	require.Len(t, changes, 3)
	assert.Equal(t, OpCreate, changes[0].Op)
	assert.Equal(t, OpUpdate, changes[1].Op)
	assert.Equal(t, 2, changes[1].WordCount)
	assert.Equal(t, OpDelete, changes[2].Op)
}

func TestExport(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemory())
	ctx := context.Background()
	active, _ := s.Active()
	require.NoError(t, s.UpdateContent(ctx, "exported text"))

	txt, err := s.Export(active.ID, "txt")
	require.NoError(t, err)
	assert.Equal(t, "Note_1.txt", txt.FileName)
	assert.Equal(t, "text/plain", txt.MIMEType)
	assert.Equal(t, "exported text", string(txt.Data))

	doc, err := s.Export(active.ID, ".DOC")
	require.NoError(t, err)
	assert.Equal(t, "Note_1.doc", doc.FileName)
	assert.Equal(t, "application/msword", doc.MIMEType)

	_, err = s.Export(active.ID, "pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = s.Export("missing", "txt")
	assert.ErrorIs(t, err, ErrNoteNotFound)
}
