package service

import (
	"math"

	"github.com/portfolio-rebalancer/internal/models"
)

// AnalysisResult holds the outcome of comparing a snapshot against a target
// allocation set
type AnalysisResult struct {
	NeedsRebalance bool               `json:"needsRebalance"`
	Deviations     []models.Deviation `json:"deviations"`
}

// AnalyzeDeviations compares a portfolio snapshot against a target set and
// computes the per-token deviation and threshold-breach status.
//
// Pure and deterministic: identical inputs yield identical output, and the
// output order follows the target list. A wallet with no declared targets is
// never out of balance. A target absent from the snapshot has a current
// percentage of 0.
func AnalyzeDeviations(snapshot *models.PortfolioSnapshot, targets []models.TargetAllocation) AnalysisResult {
	result := AnalysisResult{
		Deviations: make([]models.Deviation, 0, len(targets)),
	}

	if len(targets) == 0 {
		return result
	}

	for _, target := range targets {
		currentPercentage := 0.0
		if entry := snapshot.Entry(target.TokenMint); entry != nil {
			currentPercentage = entry.Percentage
		}

		deviation := currentPercentage - target.TargetPercentage
		needsRebalance := math.Abs(deviation) > target.ThresholdPercentage
		if needsRebalance {
			result.NeedsRebalance = true
		}

		result.Deviations = append(result.Deviations, models.Deviation{
			TokenMint:           target.TokenMint,
			TokenSymbol:         target.TokenSymbol,
			CurrentPercentage:   currentPercentage,
			TargetPercentage:    target.TargetPercentage,
			ThresholdPercentage: target.ThresholdPercentage,
			Deviation:           deviation,
			NeedsRebalance:      needsRebalance,
		})
	}

	return result
}
