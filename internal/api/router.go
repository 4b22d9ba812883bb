package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.accessLogMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		if s.provider != nil {
			r.Get("/report", s.handleReport)
		}

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", s.handleListRooms)
			r.Get("/{room}/devices", s.handleListRoomDevices)
		})

		if len(s.switches) > 0 {
			r.Post("/switches/{id}/command", s.handleSwitchCommand)
			if s.commandLog != nil {
				r.Get("/switches/{id}/commands", s.handleListSwitchCommands)
			}
		}

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
