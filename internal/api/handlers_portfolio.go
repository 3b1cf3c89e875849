package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handleConnectWallet handles POST /api/portfolio/connect
func (s *Server) handleConnectWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicKey string `json:"publicKey"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body: "+err.Error())
		return
	}
	if req.PublicKey == "" {
		respondFailure(w, http.StatusBadRequest, "INVALID_INPUT", "publicKey is required")
		return
	}

	snapshot, err := s.portfolioService.ConnectWallet(r.Context(), req.PublicKey)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, snapshot)
}

// handleGetPortfolio handles GET /api/portfolio/{publicKey}
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	publicKey := mux.Vars(r)["publicKey"]

	snapshot, err := s.portfolioService.GetSnapshot(r.Context(), publicKey)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, snapshot)
}

// handleSetTargets handles POST /api/portfolio/target
func (s *Server) handleSetTargets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicKey string          `json:"publicKey"`
		Targets   []targetRequest `json:"targets"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body: "+err.Error())
		return
	}
	if req.PublicKey == "" {
		respondFailure(w, http.StatusBadRequest, "INVALID_INPUT", "publicKey is required")
		return
	}

	saved, err := s.portfolioService.SetTargets(r.Context(), req.PublicKey, decodeTargets(req.Targets))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, saved)
}

// handleGetTargets handles GET /api/portfolio/target/{publicKey}
func (s *Server) handleGetTargets(w http.ResponseWriter, r *http.Request) {
	publicKey := mux.Vars(r)["publicKey"]

	targets, err := s.portfolioService.GetTargets(r.Context(), publicKey)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, targets)
}
