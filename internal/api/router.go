package api

import (
	"net/http"

	"rag-chat/internal/middleware"

	"github.com/gorilla/mux"
)

// SetupRoutes wires the handlers. identityHeader names the trusted header that
// carries the caller id set by the fronting auth proxy.
func SetupRoutes(h *Handler, identityHeader string) *mux.Router {
	r := mux.NewRouter()

	// Tracing first so the request logger exists for everything after it
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware(identityHeader))
	r.Use(middleware.IdentityMiddleware(identityHeader))

	api := r.PathPrefix("/api").Subrouter()

	// Chat
	api.HandleFunc("/chat", h.Chat).Methods("POST")

	// Ingestion, index maintenance and ownership write grants; admins only
	api.Handle("/seed", h.RequireAdmin("seed", h.Seed)).Methods("POST")
	api.Handle("/index/check", h.RequireAdmin("check index", h.CheckIndex)).Methods("POST")
	api.Handle("/index/clear", h.RequireAdmin("clear index", h.ClearIndex)).Methods("POST")
	api.Handle("/index/namespaces/{namespace}", h.RequireAdmin("delete namespace", h.DeleteNamespace)).Methods("DELETE")
	api.Handle("/relations/assign", h.RequireAdmin("assign relations", h.AssignRelations)).Methods("POST")
	api.Handle("/relations/unassign", h.RequireAdmin("unassign relations", h.UnassignRelations)).Methods("POST")

	api.HandleFunc("/health", h.Health).Methods("GET")

	// Preflight requests need a matching route for the CORS middleware to run
	api.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	r.HandleFunc("/metrics", h.Metrics).Methods("GET")
	r.HandleFunc("/ws/chat", h.ChatWebSocket)

	return r
}
