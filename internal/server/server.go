// internal/server/server.go
//
// HTTP command surface: the same normalized commands the CLI and signal
// files produce, submitted over REST, plus a websocket event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cairnhq/cairn/internal/command"
	"github.com/cairnhq/cairn/internal/orchestrator"
)

// Commander is the orchestrator surface the server dispatches into.
type Commander interface {
	SubmitCommand(cmd *command.Command) (*command.Result, error)
}

// Server exposes the command API and the event hub.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	hub        *Hub
	commander  Commander
}

// New creates a server around the given commander.
func New(commander Commander) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		hub:       NewHub(),
		commander: commander,
	}
	s.routes()
	return s
}

// Hub returns the event hub, so the orchestrator can publish into it.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) routes() {
	s.router.HandleFunc("/api/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/commands", s.handleCommand).Methods("POST")
	s.router.HandleFunc("/api/agents", s.handleListAgents).Methods("GET")
	s.router.HandleFunc("/api/agents/{id}", s.handleAgentStatus).Methods("GET")
	s.router.HandleFunc("/ws", s.hub.handleWS)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the hub and serves on addr until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the listener and the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleCommand accepts a payload of the form {"type": "...", ...} and
// dispatches it through the shared parser.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: invalid JSON body", command.ErrInvalidCommand))
		return
	}

	tag, _ := payload["type"].(string)
	cmd, err := command.Parse(tag, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.commander.SubmitCommand(cmd)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	result, err := s.commander.SubmitCommand(&command.Command{Type: command.TypeListAgents})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result.Payload)
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	result, err := s.commander.SubmitCommand(&command.Command{Type: command.TypeStatus, AgentID: agentID})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result.Payload)
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, command.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
