package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-registry/internal/notify"
	"github.com/kozaktomas/face-registry/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	d := s.deps

	var listener notify.Listener
	if d.Broadcaster != nil {
		listener = d.Broadcaster
	}

	healthHandler := handlers.NewHealthHandler(d.Store, d.Store.Index(), d.Queue)
	registerHandler := handlers.NewRegisterHandler(d.Registrar, d.Committer, listener)
	recognizeHandler := handlers.NewRecognizeHandler(d.Recognition)
	facesHandler := handlers.NewFacesHandler(d.Store)
	queueHandler := handlers.NewQueueHandler(d.Queue, d.Scheduler)
	eventsHandler := handlers.NewEventsHandler(d.Broadcaster)
	queryHandler := handlers.NewQueryHandler(d.Assistant)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)

		// Event stream is long-lived and must not hit the request timeout
		r.Get("/events", eventsHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(2 * time.Minute))

			r.Post("/register", registerHandler.Register)
			r.Post("/recognize", recognizeHandler.Recognize)

			r.Get("/faces", facesHandler.List)
			r.Delete("/faces/{id}", facesHandler.Delete)

			r.Get("/queue", queueHandler.List)
			r.Post("/sync", queueHandler.Sync)

			r.Post("/query", queryHandler.Query)
		})
	})
}
