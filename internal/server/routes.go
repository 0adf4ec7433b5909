// -----------------------------------------------------------------------
// Routes - admin HTTP surface wiring
// -----------------------------------------------------------------------

package server

import (
	"net/http"
)

// setupRoutes registers the admin surface. Collection endpoints route by
// method; per-resource endpoints parse an id plus an optional action
// segment.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health, version, status
	mux.HandleFunc("/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/status", s.app.StatusHandler.GetStatusHandler)

	// Worker lifecycle
	mux.HandleFunc("/start", s.app.WorkerHandler.StartHandler)
	mux.HandleFunc("/stop", s.app.WorkerHandler.StopHandler)
	mux.HandleFunc("/restart", s.app.WorkerHandler.RestartHandler)

	// Dynamic settings
	mux.HandleFunc("/config", s.handleConfigRoute)
	mux.HandleFunc("/config/reload", s.app.ConfigHandler.ReloadConfigHandler)

	// Queue items
	mux.HandleFunc("/items", s.handleItemsRoute)
	mux.HandleFunc("/items/", s.handleItemRoutes)

	// Sources
	mux.HandleFunc("/sources", s.handleSourcesRoute)
	mux.HandleFunc("/sources/", s.handleSourceRoutes)

	// Published matches
	mux.HandleFunc("/matches", s.app.MatchesHandler.ListMatchesHandler)

	// Live event stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Catch-all for unknown paths
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleConfigRoute routes /config by method
func (s *Server) handleConfigRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET":  s.app.ConfigHandler.GetConfigHandler,
		"POST": s.app.ConfigHandler.UpdateConfigHandler,
	})
}

// handleItemsRoute routes /items by method
func (s *Server) handleItemsRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET":  s.app.ItemsHandler.ListItemsHandler,
		"POST": s.app.ItemsHandler.SubmitItemHandler,
	})
}

// handleItemRoutes routes /items/{id} and /items/{id}/{action}
func (s *Server) handleItemRoutes(w http.ResponseWriter, r *http.Request) {
	_, action := SplitResourcePath(r.URL.Path, "/items/")

	switch action {
	case "":
		RouteByMethod(w, r, MethodRouter{
			"GET":    s.app.ItemsHandler.GetItemHandler,
			"DELETE": s.app.ItemsHandler.DeleteItemHandler,
		})
	case "retry":
		RouteByMethod(w, r, MethodRouter{"POST": s.app.ItemsHandler.RetryItemHandler})
	case "cancel":
		RouteByMethod(w, r, MethodRouter{"POST": s.app.ItemsHandler.CancelItemHandler})
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}

// handleSourcesRoute routes /sources by method
func (s *Server) handleSourcesRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET":  s.app.SourcesHandler.ListSourcesHandler,
		"POST": s.app.SourcesHandler.CreateSourceHandler,
	})
}

// handleSourceRoutes routes /sources/{id} and /sources/{id}/{action}
func (s *Server) handleSourceRoutes(w http.ResponseWriter, r *http.Request) {
	_, action := SplitResourcePath(r.URL.Path, "/sources/")

	switch action {
	case "":
		RouteByMethod(w, r, MethodRouter{
			"GET":    s.app.SourcesHandler.GetSourceHandler,
			"PUT":    s.app.SourcesHandler.UpdateSourceHandler,
			"DELETE": s.app.SourcesHandler.DeleteSourceHandler,
		})
	case "scrape":
		RouteByMethod(w, r, MethodRouter{"POST": s.app.SourcesHandler.ScrapeSourceHandler})
	case "recover":
		RouteByMethod(w, r, MethodRouter{"POST": s.app.SourcesHandler.RecoverSourceHandler})
	case "enable":
		RouteByMethod(w, r, MethodRouter{"POST": s.app.SourcesHandler.EnableSourceHandler})
	case "disable":
		RouteByMethod(w, r, MethodRouter{"POST": s.app.SourcesHandler.DisableSourceHandler})
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
