package api

import (
	"net/http"

	"github.com/google/uuid"
)

// handleAuthURL returns the consent URL. The state parameter carries the
// principal so the callback can attribute the grant.
func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	state := principal(r).String()
	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": s.deps.OAuth.AuthURL(state),
		"state":    state,
	})
}

// handleOAuthCallback completes the redirect leg of the consent flow.
// It is unauthenticated by necessity; the state ties the code back to the
// user who initiated consent.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code: codeValidation, Message: "code and state are required",
		})
		return
	}
	userID, err := uuid.Parse(state)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code: codeValidation, Message: "malformed state",
		})
		return
	}
	if err := s.deps.OAuth.ExchangeAndStore(r.Context(), userID, code); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

type codeExchangeRequest struct {
	Code string `json:"code"`
}

// handleCodeExchange lets clients that captured the redirect themselves
// finish the flow with their own credentials.
func (s *Server) handleCodeExchange(w http.ResponseWriter, r *http.Request) {
	var req codeExchangeRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: codeValidation, Message: err.Error()})
		return
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code: codeValidation, Message: "code is required",
		})
		return
	}
	if err := s.deps.OAuth.ExchangeAndStore(r.Context(), principal(r), req.Code); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

// handleDisconnect drops the stored grant.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.OAuth.Disconnect(r.Context(), principal(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
