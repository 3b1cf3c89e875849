package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/portfolio-rebalancer/internal/errors"
	"github.com/portfolio-rebalancer/internal/models"
	"github.com/portfolio-rebalancer/internal/service"
	"github.com/portfolio-rebalancer/internal/types"
)

// Mock services for testing

type mockPortfolioService struct {
	snapshots map[string]*models.PortfolioSnapshot
	targets   map[string][]models.TargetAllocation
	setErr    error
}

func newMockPortfolioService() *mockPortfolioService {
	return &mockPortfolioService{
		snapshots: make(map[string]*models.PortfolioSnapshot),
		targets:   make(map[string][]models.TargetAllocation),
	}
}

func (m *mockPortfolioService) ConnectWallet(ctx context.Context, publicKey string) (*models.PortfolioSnapshot, error) {
	if len(publicKey) < 32 {
		return nil, errors.NewInvalidPublicKeyError(publicKey)
	}
	s := &models.PortfolioSnapshot{PublicKey: publicKey, TotalValueUSD: 1000}
	m.snapshots[publicKey] = s
	return s, nil
}

func (m *mockPortfolioService) GetSnapshot(ctx context.Context, publicKey string) (*models.PortfolioSnapshot, error) {
	if s, ok := m.snapshots[publicKey]; ok {
		return s, nil
	}
	return nil, errors.NewWalletNotFoundError(publicKey)
}

func (m *mockPortfolioService) SetTargets(ctx context.Context, publicKey string, targets []models.TargetAllocation) ([]models.TargetAllocation, error) {
	if m.setErr != nil {
		return nil, m.setErr
	}
	var total float64
	for _, t := range targets {
		total += t.TargetPercentage
	}
	if total < 99.99 || total > 100.01 {
		return nil, errors.NewAllocationSumError(total)
	}
	m.targets[publicKey] = targets
	return targets, nil
}

func (m *mockPortfolioService) GetTargets(ctx context.Context, publicKey string) ([]models.TargetAllocation, error) {
	if t, ok := m.targets[publicKey]; ok {
		return t, nil
	}
	return nil, errors.NewWalletNotFoundError(publicKey)
}

type mockRebalanceService struct {
	checkResult *service.CheckResult
	planResult  *service.PlanResult
	planErr     error
}

func (m *mockRebalanceService) CheckRebalance(ctx context.Context, publicKey string) (*service.CheckResult, error) {
	if m.checkResult == nil {
		return nil, errors.NewWalletNotFoundError(publicKey)
	}
	return m.checkResult, nil
}

func (m *mockRebalanceService) CreatePlan(ctx context.Context, publicKey string) (*service.PlanResult, error) {
	if m.planErr != nil {
		return nil, m.planErr
	}
	return m.planResult, nil
}

type mockExecutionService struct {
	prepared   *service.PreparedExecution
	confirm    *service.ConfirmResult
	prepareErr error
	confirmErr error
}

func (m *mockExecutionService) PrepareExecution(ctx context.Context, planID string) (*service.PreparedExecution, error) {
	if m.prepareErr != nil {
		return nil, m.prepareErr
	}
	return m.prepared, nil
}

func (m *mockExecutionService) ConfirmSwap(ctx context.Context, planID, signature string) (*service.ConfirmResult, error) {
	if m.confirmErr != nil {
		return nil, m.confirmErr
	}
	return m.confirm, nil
}

func (m *mockExecutionService) AbortPlan(ctx context.Context, planID string) (*models.RebalancePlan, error) {
	return &models.RebalancePlan{ID: planID, Status: types.PlanStatusFailed}, nil
}

func newTestServer(p *mockPortfolioService, r *mockRebalanceService, e *mockExecutionService) *Server {
	return NewServer(
		&ServerConfig{
			Host:         "127.0.0.1",
			Port:         "0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			IdleTimeout:  time.Second,
		},
		p, r, e,
	)
}

func doRequest(t *testing.T, server *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	var envelope Response
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("response is not valid JSON: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, envelope
}

const testWallet = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(newMockPortfolioService(), &mockRebalanceService{}, &mockExecutionService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestConnectWalletSuccess(t *testing.T) {
	server := newTestServer(newMockPortfolioService(), &mockRebalanceService{}, &mockExecutionService{})

	rec, envelope := doRequest(t, server, http.MethodPost, "/api/portfolio/connect",
		map[string]string{"publicKey": testWallet})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !envelope.Success {
		t.Error("expected success envelope")
	}
	if envelope.Data == nil {
		t.Error("expected snapshot data in envelope")
	}
}

func TestConnectWalletInvalidKey(t *testing.T) {
	server := newTestServer(newMockPortfolioService(), &mockRebalanceService{}, &mockExecutionService{})

	rec, envelope := doRequest(t, server, http.MethodPost, "/api/portfolio/connect",
		map[string]string{"publicKey": "bogus"})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if envelope.Success {
		t.Error("expected failure envelope")
	}
	if envelope.Code != "INVALID_PUBLIC_KEY" {
		t.Errorf("expected INVALID_PUBLIC_KEY, got %q", envelope.Code)
	}
}

func TestConnectWalletMalformedBody(t *testing.T) {
	server := newTestServer(newMockPortfolioService(), &mockRebalanceService{}, &mockExecutionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/portfolio/connect", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestSetTargetsInvalidSumRejected(t *testing.T) {
	server := newTestServer(newMockPortfolioService(), &mockRebalanceService{}, &mockExecutionService{})

	rec, envelope := doRequest(t, server, http.MethodPost, "/api/portfolio/target",
		map[string]interface{}{
			"publicKey": testWallet,
			"targets": []map[string]interface{}{
				{"tokenMint": "mint-a", "targetPercentage": 60.0},
				{"tokenMint": "mint-b", "targetPercentage": 30.0},
			},
		})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if envelope.Code != "ALLOCATION_SUM_INVALID" {
		t.Errorf("expected ALLOCATION_SUM_INVALID, got %q", envelope.Code)
	}
}

func TestGetPortfolioNotFound(t *testing.T) {
	server := newTestServer(newMockPortfolioService(), &mockRebalanceService{}, &mockExecutionService{})

	rec, envelope := doRequest(t, server, http.MethodGet, "/api/portfolio/"+testWallet, nil)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if envelope.Success {
		t.Error("expected failure envelope")
	}
}

func TestCheckRebalanceEnvelope(t *testing.T) {
	rebalance := &mockRebalanceService{checkResult: &service.CheckResult{
		NeedsRebalance: true,
		TotalValueUSD:  1000,
		Deviations: []models.Deviation{
			{TokenSymbol: "SOL", Deviation: 20, NeedsRebalance: true},
		},
	}}
	server := newTestServer(newMockPortfolioService(), rebalance, &mockExecutionService{})

	rec, envelope := doRequest(t, server, http.MethodGet, "/api/rebalance/check/"+testWallet, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object data, got %T", envelope.Data)
	}
	if data["needsRebalance"] != true {
		t.Error("expected needsRebalance true in payload")
	}
}

func TestCreatePlanConflict(t *testing.T) {
	rebalance := &mockRebalanceService{planErr: errors.NewPlanInProgressError(testWallet)}
	server := newTestServer(newMockPortfolioService(), rebalance, &mockExecutionService{})

	rec, envelope := doRequest(t, server, http.MethodPost, "/api/rebalance/plan",
		map[string]string{"publicKey": testWallet})

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if envelope.Code != "PLAN_IN_PROGRESS" {
		t.Errorf("expected PLAN_IN_PROGRESS, got %q", envelope.Code)
	}
}

func TestExecuteExpiredPlan(t *testing.T) {
	execution := &mockExecutionService{prepareErr: errors.NewQuoteExpiredError("plan-1")}
	server := newTestServer(newMockPortfolioService(), &mockRebalanceService{}, execution)

	rec, envelope := doRequest(t, server, http.MethodPost, "/api/rebalance/execute",
		map[string]string{"planId": "plan-1"})

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if envelope.Code != "QUOTE_EXPIRED" {
		t.Errorf("expected QUOTE_EXPIRED, got %q", envelope.Code)
	}
}

func TestConfirmSwapMissingFields(t *testing.T) {
	server := newTestServer(newMockPortfolioService(), &mockRebalanceService{}, &mockExecutionService{})

	rec, _ := doRequest(t, server, http.MethodPost, "/api/rebalance/confirm",
		map[string]string{"planId": "plan-1"})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without txSignature, got %d", rec.Code)
	}
}

func TestConfirmSwapSuccess(t *testing.T) {
	execution := &mockExecutionService{confirm: &service.ConfirmResult{
		Plan:           &models.RebalancePlan{ID: "plan-1", Status: types.PlanStatusExecuted},
		SwapsRemaining: 0,
	}}
	server := newTestServer(newMockPortfolioService(), &mockRebalanceService{}, execution)

	rec, envelope := doRequest(t, server, http.MethodPost, "/api/rebalance/confirm",
		map[string]string{"planId": "plan-1", "txSignature": "sig-1"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !envelope.Success {
		t.Error("expected success envelope")
	}
}

func TestAbortPlanEndpoint(t *testing.T) {
	server := newTestServer(newMockPortfolioService(), &mockRebalanceService{}, &mockExecutionService{})

	rec, envelope := doRequest(t, server, http.MethodPost, "/api/rebalance/abort",
		map[string]string{"planId": "plan-1"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !envelope.Success {
		t.Error("expected success envelope")
	}
}
