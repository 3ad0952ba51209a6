// Package httpapi exposes the engine to the UI shell: state snapshots,
// commands, and a websocket event feed.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/prdeck/prdeck/internal/inbox"
	"github.com/prdeck/prdeck/internal/poller"
	"github.com/prdeck/prdeck/internal/service"
)

const maxBodyBytes = 1 << 20

// Server routes UI commands to the service layer.
type Server struct {
	svc *service.Service
	log *zap.SugaredLogger
	mux *http.ServeMux
}

func NewServer(svc *service.Service, log *zap.SugaredLogger) *Server {
	s := &Server{svc: svc, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /v1/state", s.handleState)
	s.mux.HandleFunc("POST /v1/poll", s.handlePoll)
	s.mux.HandleFunc("GET /v1/sources", s.handleListSources)
	s.mux.HandleFunc("POST /v1/sources", s.handleAddSource)
	s.mux.HandleFunc("PATCH /v1/sources/{id}", s.handleUpdateSource)
	s.mux.HandleFunc("DELETE /v1/sources/{id}", s.handleRemoveSource)
	s.mux.HandleFunc("POST /v1/ignore", s.handleIgnore)
	s.mux.HandleFunc("POST /v1/move", s.handleMove)
	s.mux.HandleFunc("POST /v1/prs", s.handleAddPR)
	s.mux.HandleFunc("GET /v1/events", s.handleEvents)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	state, err := s.svc.Snapshot()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.TriggerPollNow(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "polled"})
}

func (s *Server) handleListSources(w http.ResponseWriter, _ *http.Request) {
	state, err := s.svc.Snapshot()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state.Sources)
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var src inbox.Source
	if !s.decodeBody(w, r, &src) {
		return
	}
	added, err := s.svc.AddSource(src)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	var patch service.SourcePatch
	if !s.decodeBody(w, r, &patch) {
		return
	}
	state, err := s.svc.UpdateSource(r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleRemoveSource(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.RemoveSource(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleIgnore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PRID string `json:"prId"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	state, err := s.svc.IgnorePR(req.PRID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PRID   string       `json:"prId"`
		Column inbox.Column `json:"column"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	state, err := s.svc.MovePR(req.PRID, req.Column)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleAddPR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner  string `json:"owner"`
		Repo   string `json:"repo"`
		Number int    `json:"number"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	state, err := s.svc.AddPR(req.Owner, req.Repo, req.Number)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

// handleEvents upgrades to a websocket, sends the current snapshot, then
// streams state-updated and soft-error events until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // served on loopback for the local UI shell
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	events, cancel := s.svc.Subscribe()
	defer cancel()

	if state, snapErr := s.svc.Snapshot(); snapErr == nil {
		if err := wsjson.Write(ctx, conn, service.Event{Type: service.EventStateUpdated, State: state}); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return
			}
		}
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(out); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "invalid json body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inbox.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, inbox.ErrInvalidInput):
		writeJSONError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, inbox.ErrAlreadyExists):
		writeJSONError(w, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, poller.ErrCycleInFlight):
		writeJSONError(w, http.StatusConflict, "cycle_in_flight", err.Error())
	case errors.Is(err, context.Canceled):
		writeJSONError(w, http.StatusRequestTimeout, "canceled", err.Error())
	default:
		if s.log != nil {
			s.log.Errorw("request failed", "error", err)
		}
		writeJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": strings.TrimSpace(message),
	})
}
