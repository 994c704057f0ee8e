package selection

import (
	"sort"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

// MinCandidates is the minimum number of scored candidates required
// before any signals are emitted for a cycle.
const MinCandidates = 3

// TopN is the number of candidates promoted to signals per cycle.
const TopN = 3

// tierByRank maps rank order to visibility: the best opportunity is
// reserved for the highest tier.
var tierByRank = []contracts.Tier{
	contracts.TierPremium,
	contracts.TierPlus,
	contracts.TierFree,
}

// Ranked is a candidate with its assigned rank and visibility tier.
type Ranked struct {
	contracts.Candidate
	Rank int
	Tier contracts.Tier
}

// Ranker orders scan-cycle candidates and assigns visibility tiers.
type Ranker struct {
	logger *logger.Logger
}

// NewRanker creates a new ranker
func NewRanker(log *logger.Logger) *Ranker {
	return &Ranker{logger: log}
}

// Rank sorts candidates by score descending (stable: ties keep scan
// order) and returns the top 3 with tiers assigned in rank order.
// Returns nil when fewer than MinCandidates exist; the caller skips
// the cycle.
func (r *Ranker) Rank(candidates []contracts.Candidate) []Ranked {
	if len(candidates) < MinCandidates {
		r.logger.WithField("candidates", len(candidates)).Info("Not enough candidates, skipping cycle")
		return nil
	}

	sorted := make([]contracts.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	top := make([]Ranked, 0, TopN)
	for i := 0; i < TopN && i < len(sorted); i++ {
		top = append(top, Ranked{
			Candidate: sorted[i],
			Rank:      i + 1,
			Tier:      tierByRank[i],
		})
	}

	r.logger.WithFields(map[string]interface{}{
		"candidates": len(candidates),
		"top_symbol": top[0].Symbol,
		"top_score":  top[0].Score,
	}).Info("Ranking completed")

	return top
}
