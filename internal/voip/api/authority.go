package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	types "github.com/sebas/voipcenter/api/types/v1"
	"github.com/sebas/voipcenter/internal/voip/authority"
)

// These routes stand in for the user pressing buttons on the system call UI.

func (s *Server) decodeAuthority(w http.ResponseWriter, r *http.Request) (types.AuthorityRequest, bool) {
	var req types.AuthorityRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return req, false
		}
	}
	return req, true
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	calls := s.headless.Calls()
	response := make([]types.Call, 0, len(calls))
	for _, c := range calls {
		response = append(response, callResponse(c))
	}
	s.writeJSON(w, http.StatusOK, response)
}

func callResponse(c authority.Call) types.Call {
	return types.Call{
		ID:         c.ID,
		CallerID:   c.CallerID,
		CallerName: c.CallerName,
		Outgoing:   c.Outgoing,
		State:      string(c.State),
		EndCause:   c.EndCause,
		UpdatedAt:  c.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAuthority(w, r)
	if !ok {
		return
	}
	if err := s.headless.Answer(req.CallID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAuthority(w, r)
	if !ok {
		return
	}
	if err := s.headless.End(req.CallID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleStart places an outgoing call the way the recents list of the call UI
// would, generating the call id when none is given.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAuthority(w, r)
	if !ok {
		return
	}
	if req.Target == "" {
		s.writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: "InvalidArguments", Detail: `field "target" missing`})
		return
	}
	if req.CallID == "" {
		req.CallID = uuid.NewString()
	}
	if err := s.center.StartCall(r.Context(), req.CallID, req.Target); err != nil {
		s.writeError(w, err)
		return
	}
	call, _ := s.headless.Call(req.CallID)
	s.writeJSON(w, http.StatusAccepted, callResponse(call))
}

func (s *Server) handleAudio(activate bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if activate {
			s.headless.ActivateAudio()
		} else {
			s.headless.DeactivateAudio()
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.headless.Reset()
	w.WriteHeader(http.StatusNoContent)
}
