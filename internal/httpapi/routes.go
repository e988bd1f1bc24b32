package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(h.logRequests)

	router.Get("/healthz", h.health)
	router.Get("/readyz", h.ready)
	if h.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	router.Route("/api", func(r chi.Router) {
		r.Route("/notes", func(r chi.Router) {
			r.Get("/", h.listNotes)
			r.Post("/", h.createNote)
			r.Get("/active", h.activeNote)
			r.Put("/active", h.setActive)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getNote)
				r.Patch("/", h.renameNote)
				r.Delete("/", h.deleteNote)
				r.Post("/duplicate", h.duplicateNote)
				r.Get("/export", h.exportNote)
			})
		})

		r.Route("/dictation", func(r chi.Router) {
			r.Get("/", h.dictationState)
			r.Post("/toggle", h.toggle)
			r.Post("/start", h.start)
			r.Post("/stop", h.stop)
			r.Put("/draft", h.editDraft)
			r.Post("/save", h.save)
			r.Get("/commands", h.commands)
			r.Post("/insert", h.insert)
			r.Post("/read-aloud", h.readAloud)
			r.Delete("/read-aloud", h.stopReading)
		})

		r.Get("/autosave", h.autoSave)
		r.Put("/autosave", h.setAutoSave)
	})

	return router
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger().Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
