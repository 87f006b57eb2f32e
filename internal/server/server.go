// Package server exposes the engine as a JSON API for the dashboard:
// evaluation runs, the action queue, execution, resolution and the
// learned-weight views.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/snevemoney/nextbest/internal/database"
	"github.com/snevemoney/nextbest/internal/engine"
	"github.com/snevemoney/nextbest/internal/execute"
	"github.com/snevemoney/nextbest/internal/memory"
	"github.com/snevemoney/nextbest/internal/reconcile"
)

// Server is the HTTP server for the action engine.
type Server struct {
	db     *database.DB
	actor  string
	runner *execute.Runner
	outbox *memory.Outbox
	mux    *http.ServeMux
}

// New creates a new Server. actor is the default actor attributed to
// dashboard requests that carry no actorUserId.
func New(db *database.DB, actor string) *Server {
	outbox := memory.NewOutbox(db)
	s := &Server{
		db:     db,
		actor:  actor,
		runner: execute.NewRunner(db, outbox),
		outbox: outbox,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/run-next-actions", s.handleRun)
	s.mux.HandleFunc("/next-actions", s.handleListActions)
	s.mux.HandleFunc("/next-actions/", s.handleActionVerb)
	s.mux.HandleFunc("/copilot-actions", s.handleCopilotAction)
	s.mux.HandleFunc("/weights", s.handleListWeights)
	s.mux.HandleFunc("/memory-events", s.handleListMemoryEvents)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRun evaluates the rules covering an entity type and reconciles
// the candidates into the queue.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	entityType := r.URL.Query().Get("entityType")
	scope, err := engine.ScopeForEntity(entityType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.db.BuildSnapshot(time.Now().UTC())
	if err != nil {
		log.Printf("server: building snapshot: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	actor := s.actorFor(r)
	evaluator := engine.NewEvaluator(s.db.WeightsFor(actor))
	candidates := evaluator.Produce(snap, scope)

	// An explicit entityId narrows the pass to that entity's candidates.
	if rawID := r.URL.Query().Get("entityId"); rawID != "" {
		entityID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid entityId")
			return
		}
		var narrowed []engine.Candidate
		for _, c := range candidates {
			if c.EntityType == entityType && c.EntityID == entityID {
				narrowed = append(narrowed, c)
			}
		}
		candidates = narrowed
	}

	summary, err := reconcile.New(s.db).Upsert(scope, candidates)
	if err != nil {
		log.Printf("server: reconciling %s: %v", scope, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	actions, err := s.db.ListActions(r.URL.Query().Get("scope"), r.URL.Query().Get("status"))
	if err != nil {
		log.Printf("server: listing actions: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if actions == nil {
		actions = []database.NextAction{}
	}
	writeJSON(w, http.StatusOK, actions)
}

// handleActionVerb dispatches /next-actions/{id}/{execute|dismiss|snooze}.
func (s *Server) handleActionVerb(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/next-actions/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "expected /next-actions/{id}/{verb}")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid action id")
		return
	}

	switch parts[1] {
	case "execute":
		s.executeAction(w, r, id)
	case "dismiss":
		s.dismissAction(w, r, id)
	case "snooze":
		s.snoozeAction(w, r, id)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown verb %q", parts[1]))
	}
}

func (s *Server) executeAction(w http.ResponseWriter, r *http.Request, id int64) {
	var body struct {
		ActionKey   string `json:"actionKey"`
		Attribution string `json:"attribution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.runner.Run(execute.Request{
		NextActionID: id,
		ActionKey:    body.ActionKey,
		ActorUserID:  s.actorFor(r),
		Attribution:  body.Attribution,
	})
	switch {
	case errors.Is(err, execute.ErrActionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, execute.ErrInvalidActionKey), errors.Is(err, execute.ErrInvalidAttribution):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Printf("server: executing action %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) dismissAction(w http.ResponseWriter, r *http.Request, id int64) {
	action, err := s.db.GetAction(id)
	if err != nil {
		log.Printf("server: loading action %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if action == nil {
		writeError(w, http.StatusNotFound, "next action not found")
		return
	}

	ok, err := s.db.DismissAction(id)
	if err != nil {
		log.Printf("server: dismissing action %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "action is not queued")
		return
	}

	s.enqueueResolution(s.outbox.EnqueueDismiss, r, action)
	writeJSON(w, http.StatusOK, map[string]string{"status": database.ActionStatusDismissed})
}

func (s *Server) snoozeAction(w http.ResponseWriter, r *http.Request, id int64) {
	var body struct {
		Days int `json:"days"`
	}
	if r.Body != nil {
		// Empty body means the default window
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.Days <= 0 {
		body.Days = 1
	}

	action, err := s.db.GetAction(id)
	if err != nil {
		log.Printf("server: loading action %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if action == nil {
		writeError(w, http.StatusNotFound, "next action not found")
		return
	}

	until := database.FormatTime(time.Now().Add(time.Duration(body.Days) * 24 * time.Hour))
	ok, err := s.db.SnoozeAction(id, until)
	if err != nil {
		log.Printf("server: snoozing action %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "action is not queued")
		return
	}

	s.enqueueResolution(s.outbox.EnqueueSnooze, r, action)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       database.ActionStatusSnoozed,
		"snoozedUntil": until,
	})
}

func (s *Server) enqueueResolution(enqueue func(memory.ResolutionEvent) error, r *http.Request, action *database.NextAction) {
	err := enqueue(memory.ResolutionEvent{
		ActorUserID: s.actorFor(r),
		RuleKey:     action.CreatedByRule,
	})
	if err != nil {
		log.Printf("server: enqueueing resolution for action %d: %v", action.ID, err)
	}
}

// handleCopilotAction records an action the copilot performed on the
// operator's behalf so it feeds the learning loop like any other.
func (s *Server) handleCopilotAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var ev memory.CopilotEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if ev.ActionKey == "" {
		writeError(w, http.StatusBadRequest, "actionKey is required")
		return
	}
	if ev.ActorUserID == "" {
		ev.ActorUserID = s.actor
	}
	if err := s.outbox.EnqueueCopilot(ev); err != nil {
		log.Printf("server: enqueueing copilot action: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleListWeights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	weights, err := s.db.ListWeights(s.actorFor(r))
	if err != nil {
		log.Printf("server: listing weights: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	kind := r.URL.Query().Get("kind")
	key := r.URL.Query().Get("key")
	filtered := make([]database.LearnedWeight, 0, len(weights))
	for _, lw := range weights {
		if kind != "" && lw.Kind != kind {
			continue
		}
		if key != "" && lw.Key != key {
			continue
		}
		filtered = append(filtered, lw)
	}
	writeJSON(w, http.StatusOK, filtered)
}

func (s *Server) handleListMemoryEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.db.ListMemoryEvents(s.actorFor(r), limit)
	if err != nil {
		log.Printf("server: listing memory events: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if events == nil {
		events = []database.MemoryEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// actorFor resolves the acting user: explicit query param, else the
// configured default.
func (s *Server) actorFor(r *http.Request) string {
	if actor := r.URL.Query().Get("actorUserId"); actor != "" {
		return actor
	}
	return s.actor
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, actor string, port int) error {
	srv := New(db, actor)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
