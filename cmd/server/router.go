package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/taskflow-api/internal/api"
	apimiddleware "github.com/phrazzld/taskflow-api/internal/api/middleware"
)

// setupRouter configures the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.Trace)

	taskHandler := api.NewTaskHandler(app.taskService, app.logger)
	auditHandler := api.NewAuditHandler(app.recorder, app.logger)
	wsHandler := api.NewWSHandler(app.registry, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(apimiddleware.Identity)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.Create)
			r.Get("/", taskHandler.List)
			r.Get("/search", taskHandler.Search)
			r.Get("/{id}", taskHandler.Get)
			r.Put("/{id}", taskHandler.Update)
			r.Delete("/{id}", taskHandler.Delete)
			r.Post("/{id}/complete", taskHandler.Complete)
			r.Post("/{id}/tags", taskHandler.AddTags)
			r.Delete("/{id}/tags", taskHandler.RemoveTags)
		})

		r.Get("/audit", auditHandler.List)

		if app.interpreter != nil {
			chatHandler := api.NewChatHandler(app.interpreter, app.dispatcher, app.logger)
			r.Post("/chat", chatHandler.Chat)
		}
	})

	// Websocket endpoint for real-time task updates, behind the same
	// identity check as the REST surface.
	r.Group(func(r chi.Router) {
		r.Use(apimiddleware.Identity)
		r.Get("/ws", wsHandler.Attach)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
