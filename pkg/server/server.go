// Package server exposes a gateway session over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pario-ai/chatgate/pkg/gateway"
	"github.com/pario-ai/chatgate/pkg/models"
	"github.com/pario-ai/chatgate/pkg/ratelimit"
	"github.com/pario-ai/chatgate/pkg/registry"
)

const maxBodySize = 1 << 20

// Server serves one gateway session.
type Server struct {
	listen  string
	session *gateway.Session
	mux     *http.ServeMux
}

// New creates a Server for session that will listen on addr.
func New(addr string, session *gateway.Session) *Server {
	s := &Server{
		listen:  addr,
		session: session,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/models", s.handleModels)
	s.mux.HandleFunc("/v1/models/select", s.handleSelect)
	s.mux.HandleFunc("/v1/messages", s.handleMessages)
	s.mux.HandleFunc("/v1/cancel", s.handleCancel)
	s.mux.HandleFunc("/v1/conversation", s.handleConversation)
	s.mux.HandleFunc("/v1/conversation/clear", s.handleClear)
	s.mux.HandleFunc("/v1/conversation/export", s.handleExport)
	s.mux.HandleFunc("/v1/disconnect", s.handleDisconnect)
	s.mux.HandleFunc("/v1/stats", s.handleStats)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("chatgate listening on %s", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.session.Cancel()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

type modelsResponse struct {
	Models []models.ModelDescriptor `json:"models"`
	Active string                   `json:"active,omitempty"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := modelsResponse{Models: s.session.Client().AvailableModels()}
	if d, err := s.session.Client().ActiveModel(); err == nil {
		resp.Active = d.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

type selectRequest struct {
	Model string `json:"model"`
}

type selectResponse struct {
	Model   models.ModelDescriptor `json:"model"`
	Welcome models.Message         `json:"welcome"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req selectRequest
	if err := decodeBody(r, &req); err != nil || req.Model == "" {
		writeJSONError(w, http.StatusBadRequest, "body must be {\"model\": \"<id>\"}")
		return
	}

	d, err := s.session.SelectModel(r.Context(), req.Model)
	var probe *gateway.ProbeError
	switch {
	case errors.Is(err, registry.ErrUnknownModel):
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	case errors.As(err, &probe):
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := selectResponse{Model: d}
	if tr := s.session.Transcript(); len(tr) > 0 {
		resp.Welcome = tr[len(tr)-1]
	}
	writeJSON(w, http.StatusOK, resp)
}

type messageRequest struct {
	Message string                   `json:"message"`
	Options models.GenerationOptions `json:"options"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req messageRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := s.session.Send(r.Context(), req.Message, req.Options)
	switch {
	case gateway.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ratelimit.ErrRateLimited):
		writeJSONError(w, http.StatusTooManyRequests, err.Error())
		return
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("X-Chatgate-Request", reply.RequestID)
	if reply.CacheHit {
		w.Header().Set("X-Chatgate-Cache", "hit")
	} else {
		w.Header().Set("X-Chatgate-Cache", "miss")
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.session.Cancel()
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

type transcriptResponse struct {
	SessionID  string           `json:"session_id"`
	Transcript []models.Message `json:"transcript"`
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse{SessionID: s.session.ID(), Transcript: s.session.Transcript()})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.session.ClearConversation()
	writeJSON(w, http.StatusOK, transcriptResponse{SessionID: s.session.ID(), Transcript: s.session.Transcript()})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.session.ExportConversation())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.session.DisconnectModel()
	writeJSON(w, http.StatusOK, map[string]bool{"disconnected": true})
}

type statsResponse struct {
	models.Stats
	Cache models.CacheStats `json:"cache"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := statsResponse{Stats: s.session.Client().Stats()}
	cs, err := s.session.Client().CacheStats()
	if err != nil {
		log.Errorf("server: cache stats: %v", err)
	}
	resp.Cache = cs
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	return errors.Wrap(json.Unmarshal(body, v), "decode body")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("server: write response: %v", err)
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorBody{Error: errorDetail{Message: message, Type: "chatgate_error", Code: code}})
}
