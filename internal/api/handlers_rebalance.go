package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handleCheckRebalance handles GET /api/rebalance/check/{publicKey}
func (s *Server) handleCheckRebalance(w http.ResponseWriter, r *http.Request) {
	publicKey := mux.Vars(r)["publicKey"]

	result, err := s.rebalanceService.CheckRebalance(r.Context(), publicKey)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, result)
}

// handleCreatePlan handles POST /api/rebalance/plan
func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
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

	result, err := s.rebalanceService.CreatePlan(r.Context(), req.PublicKey)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, result)
}

// handleExecutePlan handles POST /api/rebalance/execute
func (s *Server) handleExecutePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicKey string `json:"publicKey"`
		PlanID    string `json:"planId"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body: "+err.Error())
		return
	}
	if req.PlanID == "" {
		respondFailure(w, http.StatusBadRequest, "INVALID_INPUT", "planId is required")
		return
	}

	prepared, err := s.executionService.PrepareExecution(r.Context(), req.PlanID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, prepared)
}

// handleConfirmSwap handles POST /api/rebalance/confirm
func (s *Server) handleConfirmSwap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicKey   string `json:"publicKey"`
		PlanID      string `json:"planId"`
		TxSignature string `json:"txSignature"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body: "+err.Error())
		return
	}
	if req.PlanID == "" || req.TxSignature == "" {
		respondFailure(w, http.StatusBadRequest, "INVALID_INPUT", "planId and txSignature are required")
		return
	}

	result, err := s.executionService.ConfirmSwap(r.Context(), req.PlanID, req.TxSignature)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, result)
}

// handleAbortPlan handles POST /api/rebalance/abort
func (s *Server) handleAbortPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanID string `json:"planId"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body: "+err.Error())
		return
	}
	if req.PlanID == "" {
		respondFailure(w, http.StatusBadRequest, "INVALID_INPUT", "planId is required")
		return
	}

	plan, err := s.executionService.AbortPlan(r.Context(), req.PlanID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, plan)
}
