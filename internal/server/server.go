// -----------------------------------------------------------------------
// Server - admin HTTP server lifecycle
// -----------------------------------------------------------------------

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/venari/internal/app"
	"github.com/ternarybob/venari/internal/common"
)

// Server manages the admin HTTP server and its routes
type Server struct {
	app    *app.App
	router *http.ServeMux
	server *http.Server
}

// New creates the HTTP server over the given app
func New(application *app.App) *Server {
	s := &Server{
		app: application,
	}

	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", application.Config.Server.Host, application.Config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withConditionalMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start blocks serving until Shutdown is called
func (s *Server) Start() error {
	s.app.Logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Str(common.FieldAction, common.ActionStart).
		Str("address", s.server.Addr).
		Msg("Admin HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Str(common.FieldAction, common.ActionStop).
		Msg("Shutting down admin HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
