package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/loqalabs/loqa-scribe/internal/dictation"
	"github.com/loqalabs/loqa-scribe/internal/notes"
	"github.com/loqalabs/loqa-scribe/internal/speech"
	"github.com/loqalabs/loqa-scribe/internal/tts"
)

type dictationResponse struct {
	Speech    speech.State `json:"speech"`
	NoteID    string       `json:"noteId"`
	Draft     string       `json:"draft"`
	WordCount int          `json:"wordCount"`
	CharCount int          `json:"charCount"`
	Pending   *string      `json:"pending,omitempty"`
	AutoSave  bool         `json:"autoSave"`
}

type draftRequest struct {
	Content string `json:"content"`
}

type insertRequest struct {
	Command string  `json:"command,omitempty"`
	Text    *string `json:"text,omitempty"`
}

type readAloudRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	NoteID    string `json:"noteId,omitempty"`
}

func (h *Handler) dictationState(w http.ResponseWriter, _ *http.Request) {
	id, draft := h.Surface.Draft()
	words, chars := notes.Count(draft)
	resp := dictationResponse{
		Speech:    h.Surface.Speech(),
		NoteID:    id,
		Draft:     draft,
		WordCount: words,
		CharCount: chars,
		AutoSave:  h.Store.AutoSave(),
	}
	if pending, ok := h.Surface.Pending(); ok {
		resp.Pending = &pending
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) speechControl(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, h.Surface.Speech())
	}
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	h.speechControl(h.Surface.Toggle)(w, r)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.speechControl(h.Surface.Start)(w, r)
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	h.speechControl(h.Surface.Stop)(w, r)
}

func (h *Handler) editDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.Surface.Edit(req.Content)
	h.dictationState(w, r)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	if err := h.Surface.Save(r.Context()); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.activeNote(w, r)
}

func (h *Handler) commands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dictation.Commands())
}

// insert offers a helper token or literal text and merges it into the draft.
func (h *Handler) insert(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch {
	case req.Text != nil:
		h.Surface.Offer(*req.Text)
	case req.Command != "":
		if err := h.Surface.Insert(req.Command); err != nil {
			h.writeStoreError(w, r, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "command or text is required")
		return
	}
	h.Surface.Consume()
	h.dictationState(w, r)
}

func (h *Handler) readAloud(w http.ResponseWriter, r *http.Request) {
	if h.Reader == nil {
		writeError(w, http.StatusNotImplemented, "read-aloud disabled")
		return
	}
	var req readAloudRequest
	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	noteID, text := h.Surface.Draft()
	if req.NoteID != "" {
		note, ok := h.Store.Get(req.NoteID)
		if !ok {
			writeError(w, http.StatusNotFound, "note not found")
			return
		}
		noteID, text = note.ID, note.Content
	}
	if err := h.Reader.ReadAloud(tts.ReadRequest{SessionID: req.SessionID, NoteID: noteID, Text: text}); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) stopReading(w http.ResponseWriter, r *http.Request) {
	if h.Reader == nil {
		writeError(w, http.StatusNotImplemented, "read-aloud disabled")
		return
	}
	session := r.URL.Query().Get("session")
	if session == "" {
		session = "default"
	}
	if !h.Reader.Stop(session) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
