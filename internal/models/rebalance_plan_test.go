package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlanExpired(t *testing.T) {
	now := time.Now()
	plan := &RebalancePlan{
		CreatedAt: now,
		ExpiresAt: now.Add(2 * time.Minute),
	}

	assert.False(t, plan.Expired(now))
	assert.False(t, plan.Expired(plan.ExpiresAt), "expiry boundary is inclusive of the deadline instant")
	assert.True(t, plan.Expired(plan.ExpiresAt.Add(time.Second)))
}

func TestAllSwapsConfirmed(t *testing.T) {
	sig := "sig-1"

	plan := &RebalancePlan{}
	assert.True(t, plan.AllSwapsConfirmed(), "a plan with no swaps counts as fully confirmed")

	plan.Swaps = []SwapAction{{}, {}}
	assert.False(t, plan.AllSwapsConfirmed())

	plan.Swaps[0].Signature = &sig
	assert.False(t, plan.AllSwapsConfirmed(), "one unconfirmed swap keeps the plan unconfirmed")

	plan.Swaps[1].Signature = &sig
	assert.True(t, plan.AllSwapsConfirmed())
}

func TestSnapshotEntryLookup(t *testing.T) {
	snapshot := &PortfolioSnapshot{
		Entries: []PortfolioEntry{
			{TokenMint: "mint-a", ValueUSD: 100},
			{TokenMint: "mint-b", ValueUSD: 200},
		},
	}

	entry := snapshot.Entry("mint-b")
	if assert.NotNil(t, entry) {
		assert.Equal(t, 200.0, entry.ValueUSD)
	}
	assert.Nil(t, snapshot.Entry("mint-c"))
}
