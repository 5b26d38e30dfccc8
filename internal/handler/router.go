package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chathandler "github.com/parleyhq/parley/internal/handler/chat"
	streamhandler "github.com/parleyhq/parley/internal/handler/stream"
	wshandler "github.com/parleyhq/parley/internal/handler/ws"
	middlewarePkg "github.com/parleyhq/parley/internal/middleware"
	chatservice "github.com/parleyhq/parley/internal/service/chat"
)

// NewRouter wires HTTP routes to the chat orchestrator.
func NewRouter(svc *chatservice.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chathandler.New(svc).RegisterRoutes(r)
	streamhandler.New(svc).RegisterRoutes(r)
	wshandler.New(svc).RegisterRoutes(r)

	return r
}
