// Package api exposes the call center over HTTP and a WebSocket event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	types "github.com/sebas/voipcenter/api/types/v1"
	"github.com/sebas/voipcenter/internal/voip/authority"
	"github.com/sebas/voipcenter/internal/voip/center"
	"github.com/sebas/voipcenter/internal/voip/events"
	"github.com/sebas/voipcenter/internal/voip/session"
	"github.com/sebas/voipcenter/internal/voip/token"
)

// Config configures the API server
type Config struct {
	Addr   string
	NodeID string
}

// Deps are what the server exposes. Headless and Gatherer are optional.
type Deps struct {
	Center   *center.Center
	Bridge   *events.Bridge
	Acks     *AckHub
	Tokens   token.Store
	Headless *authority.Headless
	Gatherer prometheus.Gatherer
}

// Server provides the HTTP API (headless, API only)
type Server struct {
	cfg        Config
	httpServer *http.Server
	center     *center.Center
	bridge     *events.Bridge
	acks       *AckHub
	tokens     token.Store
	headless   *authority.Headless
	startTime  time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new API server
func NewServer(cfg Config, deps Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		center:    deps.Center,
		bridge:    deps.Bridge,
		acks:      deps.Acks,
		tokens:    deps.Tokens,
		headless:  deps.Headless,
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	mux := http.NewServeMux()

	// Health and status
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Application surface
	mux.HandleFunc("POST /api/v1/methods/{method}", s.handleMethod)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("POST /api/v1/replies/{id}", s.handleReply)

	// Push transport
	mux.HandleFunc("POST /api/v1/push", s.handlePush)
	mux.HandleFunc("POST /api/v1/push/token", s.handleToken)

	// Simulated call UI
	if s.headless != nil {
		mux.HandleFunc("GET /api/v1/authority/calls", s.handleCalls)
		mux.HandleFunc("POST /api/v1/authority/answer", s.handleAnswer)
		mux.HandleFunc("POST /api/v1/authority/end", s.handleEnd)
		mux.HandleFunc("POST /api/v1/authority/start", s.handleStart)
		mux.HandleFunc("POST /api/v1/authority/audio/activate", s.handleAudio(true))
		mux.HandleFunc("POST /api/v1/authority/audio/deactivate", s.handleAudio(false))
		mux.HandleFunc("POST /api/v1/authority/reset", s.handleReset)
	}

	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	return s
}

// Handler returns the routing handler, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	slog.Info("[API] Starting HTTP API server", "addr", s.cfg.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("[API] Server error", "error", err)
		}
	}()
	return nil
}

// Stop closes the event streams and the listener
func (s *Server) Stop() error {
	s.cancel()
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// --- Health & Status ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, types.HealthResponse{
		Status: "ok",
		Uptime: int64(time.Since(s.startTime).Seconds()),
		NodeID: s.cfg.NodeID,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.center.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, types.StatusResponse{
		Session:         sessionResponse(st.Session),
		ReactionPending: st.ReactionPending,
		Announced:       st.Announced,
		AnswerPending:   st.AnswerPending,
		AckPending:      st.AckPending,
		Listening:       s.bridge.Listening(),
		PendingAcks:     s.acks.Pending(),
		EventsDropped:   s.bridge.DroppedCount(),
	})
}

func sessionResponse(snap session.Snapshot) types.Session {
	out := types.Session{
		State:         snap.State.String(),
		Label:         snap.StateLabel(),
		Role:          snap.Role.String(),
		EndedManually: snap.EndedManually,
		Generation:    snap.Generation,
	}
	if snap.Identity != nil {
		out.CallID = snap.Identity.ID
		out.CallerID = snap.Identity.CallerID
		out.CallerName = snap.Identity.CallerName
		out.Info = snap.Identity.Info
	}
	if snap.State == session.StateEnded {
		out.Cause = snap.Cause.String()
	}
	if !snap.StartedAt.IsZero() {
		out.StartedAt = snap.StartedAt.Format(time.RFC3339)
	}
	if !snap.EndedAt.IsZero() {
		out.EndedAt = snap.EndedAt.Format(time.RFC3339)
	}
	return out
}

// --- Methods ---

func (s *Server) handleMethod(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")

	args := map[string]any{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			s.writeJSON(w, http.StatusBadRequest, types.ErrorResponse{
				Error:  "InvalidArguments",
				Detail: "body must be a JSON object",
			})
			return
		}
	}

	result, err := s.center.Invoke(r.Context(), method, args)
	if err != nil {
		slog.Debug("[API] Method failed", "method", method, "error", err)
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, types.MethodResponse{Method: method, Result: result})
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var reply types.AckReply
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&reply); err != nil {
			http.Error(w, "Invalid reply", http.StatusBadRequest)
			return
		}
	}
	if !s.acks.Reply(r.PathValue("id"), reply.Error) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Push ---

// handlePush always accepts; a malformed payload is dropped with a diagnostic
// the same way a platform push would be.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	resp := types.PushResponse{Accepted: true}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		resp.Dropped = "payload is not a JSON object"
		slog.Warn("[API] Dropping push", "error", err)
		s.writeJSON(w, http.StatusAccepted, resp)
		return
	}

	if err := s.center.HandlePush(r.Context(), raw); err != nil {
		resp.Dropped = err.Error()
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req types.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	raw, err := token.DecodeHex(req.Token)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: "InvalidArguments", Detail: err.Error()})
		return
	}
	if err := s.tokens.Save(r.Context(), raw); err != nil {
		slog.Error("[API] Failed to save push token", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{Error: "TokenStore", Detail: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, center.ErrInvalidArguments):
		return http.StatusBadRequest, "InvalidArguments"
	case errors.Is(err, center.ErrNotImplemented):
		return http.StatusNotFound, "NotImplemented"
	case errors.Is(err, session.ErrAlreadyInCall):
		return http.StatusConflict, "AlreadyInCall"
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict, "InvalidTransition"
	case errors.Is(err, authority.ErrUnknownCall):
		return http.StatusNotFound, "UnknownCall"
	case errors.Is(err, authority.ErrInvalidState):
		return http.StatusConflict, "InvalidState"
	case errors.Is(err, authority.ErrAuthority):
		return http.StatusBadGateway, "Authority"
	case errors.Is(err, center.ErrStopped):
		return http.StatusServiceUnavailable, "Stopped"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "Timeout"
	default:
		return http.StatusInternalServerError, "Internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	resp := types.ErrorResponse{Error: code, Detail: err.Error()}

	var invalid *center.InvalidArgumentsError
	if errors.As(err, &invalid) {
		resp.Detail = invalid.Detail()
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("[API] Failed to encode JSON", "error", err)
	}
}
