package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loqalabs/loqa-scribe/internal/notes"
)

type notesResponse struct {
	Notes    []notes.Note `json:"notes"`
	ActiveID string       `json:"activeId"`
}

type activeRequest struct {
	ID string `json:"id"`
}

type renameRequest struct {
	Title string `json:"title"`
}

type autoSaveBody struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) listNotes(w http.ResponseWriter, _ *http.Request) {
	resp := notesResponse{Notes: h.Store.Notes(), ActiveID: ""}
	if active, ok := h.Store.Active(); ok {
		resp.ActiveID = active.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.Store.CreateNote(r.Context())
	h.Surface.Reload()
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (h *Handler) activeNote(w http.ResponseWriter, _ *http.Request) {
	note, ok := h.Store.Active()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.Surface.Select(req.ID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.activeNote(w, r)
}

func (h *Handler) getNote(w http.ResponseWriter, r *http.Request) {
	note, ok := h.Store.Get(chi.URLParam(r, "id"))
	if !ok {
		h.writeStoreError(w, r, notes.ErrNoteNotFound)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (h *Handler) renameNote(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decode(r, &req); err != nil || req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Store.RenameNote(r.Context(), id, req.Title); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.getNote(w, r)
}

func (h *Handler) deleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wasActive := h.Store.ActiveID() == id
	err := h.Store.DeleteNote(r.Context(), id)
	if wasActive {
		h.Surface.Reload()
	}
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) duplicateNote(w http.ResponseWriter, r *http.Request) {
	dup, err := h.Store.DuplicateNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dup)
}

func (h *Handler) exportNote(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "txt"
	}
	export, err := h.Store.Export(chi.URLParam(r, "id"), format)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func (h *Handler) autoSave(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, autoSaveBody{Enabled: h.Store.AutoSave()})
}

func (h *Handler) setAutoSave(w http.ResponseWriter, r *http.Request) {
	var req autoSaveBody
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.Store.SetAutoSave(req.Enabled)
	writeJSON(w, http.StatusOK, autoSaveBody{Enabled: h.Store.AutoSave()})
}
