package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/portfolio-rebalancer/internal/adapter"
	"github.com/portfolio-rebalancer/internal/errors"
	"github.com/portfolio-rebalancer/internal/models"
	"github.com/portfolio-rebalancer/internal/storage"
	"github.com/portfolio-rebalancer/internal/types"
)

// Mock collaborators for testing

type mockTargetStore struct {
	targets map[string][]models.TargetAllocation
}

func newMockTargetStore() *mockTargetStore {
	return &mockTargetStore{targets: make(map[string][]models.TargetAllocation)}
}

func (m *mockTargetStore) ReplaceAll(ctx context.Context, publicKey string, targets []models.TargetAllocation) error {
	m.targets[publicKey] = targets
	return nil
}

func (m *mockTargetStore) GetByWallet(ctx context.Context, publicKey string) ([]models.TargetAllocation, error) {
	return m.targets[publicKey], nil
}

type mockPlanStore struct {
	plans map[string]*models.RebalancePlan
}

func newMockPlanStore() *mockPlanStore {
	return &mockPlanStore{plans: make(map[string]*models.RebalancePlan)}
}

func (m *mockPlanStore) Create(ctx context.Context, plan *models.RebalancePlan) error {
	if plan.ID == "" {
		plan.ID = fmt.Sprintf("plan-%d", len(m.plans)+1)
	}
	plan.Status = types.PlanStatusPending
	stored := *plan
	stored.Swaps = append([]models.SwapAction(nil), plan.Swaps...)
	m.plans[plan.ID] = &stored
	return nil
}

func (m *mockPlanStore) GetByID(ctx context.Context, planID string) (*models.RebalancePlan, error) {
	if p, ok := m.plans[planID]; ok {
		copied := *p
		copied.Swaps = append([]models.SwapAction(nil), p.Swaps...)
		return &copied, nil
	}
	return nil, storage.ErrPlanNotFound
}

func (m *mockPlanStore) ConfirmSwap(ctx context.Context, planID, signature string) (bool, error) {
	p, ok := m.plans[planID]
	if !ok {
		return false, fmt.Errorf("plan %s missing", planID)
	}
	for i := range p.Swaps {
		if p.Swaps[i].Signature != nil && *p.Swaps[i].Signature == signature {
			return false, nil
		}
	}
	for i := range p.Swaps {
		if p.Swaps[i].Signature == nil {
			sig := signature
			now := time.Now()
			p.Swaps[i].Signature = &sig
			p.Swaps[i].ConfirmedAt = &now
			return true, nil
		}
	}
	return false, fmt.Errorf("no unconfirmed swap left")
}

func (m *mockPlanStore) UnconfirmedCount(ctx context.Context, planID string) (int, error) {
	p, ok := m.plans[planID]
	if !ok {
		return 0, fmt.Errorf("plan %s missing", planID)
	}
	count := 0
	for i := range p.Swaps {
		if p.Swaps[i].Signature == nil {
			count++
		}
	}
	return count, nil
}

func (m *mockPlanStore) TransitionStatus(ctx context.Context, planID string, from, to types.PlanStatus) (bool, error) {
	p, ok := m.plans[planID]
	if !ok {
		return false, fmt.Errorf("plan %s missing", planID)
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (m *mockPlanStore) ListByWallet(ctx context.Context, publicKey string, limit int) ([]models.RebalancePlan, error) {
	var result []models.RebalancePlan
	for _, p := range m.plans {
		if p.PublicKey == publicKey {
			result = append(result, *p)
		}
	}
	return result, nil
}

// mockQuoter returns deterministic quotes priced off a fixed token price map
type mockQuoter struct {
	prices     map[string]float64 // USD per whole token
	decimals   map[string]uint8
	impact     map[string]float64 // keyed by inputMint:outputMint
	failPairs  map[string]bool
	quoteCalls []string
}

func newMockQuoter() *mockQuoter {
	return &mockQuoter{
		prices:    map[string]float64{},
		decimals:  map[string]uint8{},
		impact:    map[string]float64{},
		failPairs: map[string]bool{},
	}
}

func pairKey(in, out string) string { return in + ":" + out }

func (m *mockQuoter) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64) (*adapter.Quote, error) {
	m.quoteCalls = append(m.quoteCalls, pairKey(inputMint, outputMint))
	if m.failPairs[pairKey(inputMint, outputMint)] {
		return nil, fmt.Errorf("quote api unavailable")
	}

	inWhole := float64(amount) / math.Pow10(int(m.decimals[inputMint]))
	valueUSD := inWhole * m.prices[inputMint]
	outWhole := valueUSD / m.prices[outputMint]
	outAmount := uint64(outWhole * math.Pow10(int(m.decimals[outputMint])))

	return &adapter.Quote{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		InAmount:       amount,
		OutAmount:      outAmount,
		PriceImpactPct: m.impact[pairKey(inputMint, outputMint)],
		Raw:            json.RawMessage(`{"mock":"quote"}`),
	}, nil
}

func (m *mockQuoter) BuildSwapInstructions(ctx context.Context, quotePayload []byte, userPublicKey string) (json.RawMessage, error) {
	return json.RawMessage(`{"instructions":[]}`), nil
}

type mockLocker struct {
	held    map[string]bool
	deleted []string
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]bool)}
}

func (m *mockLocker) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if m.held[key] {
		return false, nil
	}
	m.held[key] = true
	return true, nil
}

func (m *mockLocker) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.held, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}

func newTestRebalanceService(balances *mockBalanceSource, prices *mockPriceOracle, quoter *mockQuoter, plans *mockPlanStore, targets *mockTargetStore, locker PlanLocker) *RebalanceService {
	snapshots := NewSnapshotService(balances, prices, newMockPortfolioStore())
	return NewRebalanceService(snapshots, targets, plans, quoter, locker, 2*time.Minute, 30*time.Second)
}

func TestCreatePlanDriftedPortfolio(t *testing.T) {
	// 70/30 SOL/USDC on a 50/50 target: one swap moving 20% of the
	// portfolio value out of SOL
	balances := &mockBalanceSource{holdings: []models.TokenHolding{
		holding(solMint, "SOL", 7, 9),
		holding(usdcMint, "USDC", 300, 6),
	}}
	prices := &mockPriceOracle{prices: map[string]float64{solMint: 100, usdcMint: 1}}

	quoter := newMockQuoter()
	quoter.prices = map[string]float64{solMint: 100, usdcMint: 1}
	quoter.decimals = map[string]uint8{solMint: 9, usdcMint: 6}
	quoter.impact[pairKey(solMint, usdcMint)] = 0.3

	plans := newMockPlanStore()
	targets := newMockTargetStore()
	targets.targets["wallet-1"] = []models.TargetAllocation{
		target(solMint, "SOL", 50, 5),
		target(usdcMint, "USDC", 50, 5),
	}

	svc := newTestRebalanceService(balances, prices, quoter, plans, targets, nil)

	result, err := svc.CreatePlan(context.Background(), "wallet-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.NeedsRebalance || result.Plan == nil {
		t.Fatal("expected a plan for a drifted portfolio")
	}

	plan := result.Plan
	if len(plan.Swaps) != 1 {
		t.Fatalf("expected 1 swap, got %d", len(plan.Swaps))
	}

	swap := plan.Swaps[0]
	if swap.FromMint != solMint || swap.ToMint != usdcMint {
		t.Errorf("expected SOL -> USDC, got %s -> %s", swap.FromSymbol, swap.ToSymbol)
	}
	// 20% of $1000 at $100/SOL
	if math.Abs(swap.FromAmount-2.0) > 1e-6 {
		t.Errorf("expected 2 SOL, got %.6f", swap.FromAmount)
	}
	if math.Abs(swap.ToAmount-200) > 1e-3 {
		t.Errorf("expected ~200 USDC out, got %.6f", swap.ToAmount)
	}
	if plan.EstimatedSlippage != 0.3 {
		t.Errorf("expected slippage 0.3, got %.4f", plan.EstimatedSlippage)
	}
	if plan.Status != types.PlanStatusPending {
		t.Errorf("expected pending plan, got %s", plan.Status)
	}
	if !plan.ExpiresAt.After(plan.CreatedAt) {
		t.Error("plan must expire after creation")
	}
}

func TestCreatePlanBalancedPortfolio(t *testing.T) {
	balances := &mockBalanceSource{holdings: []models.TokenHolding{
		holding(solMint, "SOL", 5, 9),
		holding(usdcMint, "USDC", 500, 6),
	}}
	prices := &mockPriceOracle{prices: map[string]float64{solMint: 100, usdcMint: 1}}

	plans := newMockPlanStore()
	targets := newMockTargetStore()
	targets.targets["wallet-1"] = []models.TargetAllocation{
		target(solMint, "SOL", 50, 5),
		target(usdcMint, "USDC", 50, 5),
	}

	svc := newTestRebalanceService(balances, prices, newMockQuoter(), plans, targets, nil)

	result, err := svc.CreatePlan(context.Background(), "wallet-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NeedsRebalance || result.Plan != nil {
		t.Error("balanced portfolio must not produce a plan")
	}
	if len(plans.plans) != 0 {
		t.Error("no plan should be persisted for a balanced portfolio")
	}
}

func TestCreatePlanNoSelfSwap(t *testing.T) {
	balances := &mockBalanceSource{holdings: []models.TokenHolding{
		holding(solMint, "SOL", 7, 9),
		holding(usdcMint, "USDC", 300, 6),
	}}
	prices := &mockPriceOracle{prices: map[string]float64{solMint: 100, usdcMint: 1}}

	quoter := newMockQuoter()
	quoter.prices = map[string]float64{solMint: 100, usdcMint: 1}
	quoter.decimals = map[string]uint8{solMint: 9, usdcMint: 6}

	plans := newMockPlanStore()
	targets := newMockTargetStore()
	targets.targets["wallet-1"] = []models.TargetAllocation{
		target(solMint, "SOL", 50, 5),
		target(usdcMint, "USDC", 50, 5),
	}

	svc := newTestRebalanceService(balances, prices, quoter, plans, targets, nil)

	result, err := svc.CreatePlan(context.Background(), "wallet-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, swap := range result.Plan.Swaps {
		if swap.FromMint == swap.ToMint {
			t.Errorf("self swap %s -> %s", swap.FromSymbol, swap.ToSymbol)
		}
	}
}

func TestCreatePlanSplitsAcrossUndersupplied(t *testing.T) {
	// SOL at 70% vs 40% target drains into both stables
	balances := &mockBalanceSource{holdings: []models.TokenHolding{
		holding(solMint, "SOL", 7, 9),
		holding(usdcMint, "USDC", 150, 6),
		holding(usdtMint, "USDT", 150, 6),
	}}
	prices := &mockPriceOracle{prices: map[string]float64{solMint: 100, usdcMint: 1, usdtMint: 1}}

	quoter := newMockQuoter()
	quoter.prices = map[string]float64{solMint: 100, usdcMint: 1, usdtMint: 1}
	quoter.decimals = map[string]uint8{solMint: 9, usdcMint: 6, usdtMint: 6}

	plans := newMockPlanStore()
	targets := newMockTargetStore()
	targets.targets["wallet-1"] = []models.TargetAllocation{
		target(solMint, "SOL", 40, 5),
		target(usdcMint, "USDC", 30, 5),
		target(usdtMint, "USDT", 30, 5),
	}

	svc := newTestRebalanceService(balances, prices, quoter, plans, targets, nil)

	result, err := svc.CreatePlan(context.Background(), "wallet-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plan := result.Plan
	if len(plan.Swaps) != 2 {
		t.Fatalf("expected 2 swaps, got %d", len(plan.Swaps))
	}
	// Each undersupplied stable needs 15% of $1000
	for _, swap := range plan.Swaps {
		if swap.FromMint != solMint {
			t.Errorf("expected all swaps to drain SOL, got from %s", swap.FromSymbol)
		}
		if math.Abs(swap.FromAmount-1.5) > 1e-6 {
			t.Errorf("expected 1.5 SOL per swap, got %.6f", swap.FromAmount)
		}
	}
	if plan.Swaps[0].ToMint != usdcMint || plan.Swaps[1].ToMint != usdtMint {
		t.Error("swaps should follow target declaration order")
	}
}

func TestCreatePlanQuoteFailurePersistsEmptyPlan(t *testing.T) {
	balances := &mockBalanceSource{holdings: []models.TokenHolding{
		holding(solMint, "SOL", 7, 9),
		holding(usdcMint, "USDC", 300, 6),
	}}
	prices := &mockPriceOracle{prices: map[string]float64{solMint: 100, usdcMint: 1}}

	quoter := newMockQuoter()
	quoter.prices = map[string]float64{solMint: 100, usdcMint: 1}
	quoter.decimals = map[string]uint8{solMint: 9, usdcMint: 6}
	quoter.failPairs[pairKey(solMint, usdcMint)] = true

	plans := newMockPlanStore()
	targets := newMockTargetStore()
	targets.targets["wallet-1"] = []models.TargetAllocation{
		target(solMint, "SOL", 50, 5),
		target(usdcMint, "USDC", 50, 5),
	}

	svc := newTestRebalanceService(balances, prices, quoter, plans, targets, nil)

	result, err := svc.CreatePlan(context.Background(), "wallet-1")
	if err != nil {
		t.Fatalf("a quote failure must not abort plan creation: %v", err)
	}
	if result.Plan == nil {
		t.Fatal("expected a persisted plan despite quote failure")
	}
	if len(result.Plan.Swaps) != 0 {
		t.Errorf("expected empty swap list, got %d", len(result.Plan.Swaps))
	}
	if result.Plan.EstimatedSlippage != 0 {
		t.Errorf("zero-swap plan must report slippage 0, got %.4f", result.Plan.EstimatedSlippage)
	}
	if len(plans.plans) != 1 {
		t.Error("empty plan should still be persisted")
	}
}

func TestCreatePlanConcurrentCreationRejected(t *testing.T) {
	balances := &mockBalanceSource{holdings: []models.TokenHolding{
		holding(solMint, "SOL", 7, 9),
	}}
	prices := &mockPriceOracle{prices: map[string]float64{solMint: 100}}

	locker := newMockLocker()
	locker.held["planlock:wallet-1"] = true // another creation in flight

	plans := newMockPlanStore()
	targets := newMockTargetStore()
	targets.targets["wallet-1"] = []models.TargetAllocation{
		target(solMint, "SOL", 50, 5),
		target(usdcMint, "USDC", 50, 5),
	}

	svc := newTestRebalanceService(balances, prices, newMockQuoter(), plans, targets, locker)

	_, err := svc.CreatePlan(context.Background(), "wallet-1")
	if err == nil {
		t.Fatal("expected conflict error while another creation holds the lock")
	}
	catErr, ok := err.(*errors.CategorizedError)
	if !ok || catErr.Code != "PLAN_IN_PROGRESS" {
		t.Errorf("expected PLAN_IN_PROGRESS, got %v", err)
	}
}

func TestCreatePlanReleasesLock(t *testing.T) {
	balances := &mockBalanceSource{holdings: []models.TokenHolding{
		holding(solMint, "SOL", 7, 9),
		holding(usdcMint, "USDC", 300, 6),
	}}
	prices := &mockPriceOracle{prices: map[string]float64{solMint: 100, usdcMint: 1}}

	quoter := newMockQuoter()
	quoter.prices = map[string]float64{solMint: 100, usdcMint: 1}
	quoter.decimals = map[string]uint8{solMint: 9, usdcMint: 6}

	locker := newMockLocker()
	plans := newMockPlanStore()
	targets := newMockTargetStore()
	targets.targets["wallet-1"] = []models.TargetAllocation{
		target(solMint, "SOL", 50, 5),
		target(usdcMint, "USDC", 50, 5),
	}

	svc := newTestRebalanceService(balances, prices, quoter, plans, targets, locker)

	if _, err := svc.CreatePlan(context.Background(), "wallet-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if locker.held["planlock:wallet-1"] {
		t.Error("lock should be released after plan creation")
	}
}

func TestCheckRebalanceReportsDeviations(t *testing.T) {
	balances := &mockBalanceSource{holdings: []models.TokenHolding{
		holding(solMint, "SOL", 7, 9),
		holding(usdcMint, "USDC", 300, 6),
	}}
	prices := &mockPriceOracle{prices: map[string]float64{solMint: 100, usdcMint: 1}}

	targets := newMockTargetStore()
	targets.targets["wallet-1"] = []models.TargetAllocation{
		target(solMint, "SOL", 50, 5),
		target(usdcMint, "USDC", 50, 5),
	}

	svc := newTestRebalanceService(balances, prices, newMockQuoter(), newMockPlanStore(), targets, nil)

	result, err := svc.CheckRebalance(context.Background(), "wallet-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.NeedsRebalance {
		t.Error("expected rebalance needed at 70/30 vs 50/50")
	}
	if result.TotalValueUSD != 1000 {
		t.Errorf("expected total 1000, got %.2f", result.TotalValueUSD)
	}
	if len(result.Deviations) != 2 {
		t.Fatalf("expected 2 deviations, got %d", len(result.Deviations))
	}
}
