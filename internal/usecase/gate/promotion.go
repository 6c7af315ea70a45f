package gate

import (
	"fmt"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/usecase/fusion"
	"github.com/kailas-cloud/fusegate/internal/usecase/queryparse"
)

// HeldOutQuery is one labeled check query for promotion evaluation: the
// ranked source lists as retrieved, plus the ids judged relevant.
type HeldOutQuery struct {
	Query       string
	Lists       []fusion.SourceList
	RelevantIDs []string
}

// PromotionFloors are the fixed precision/recall/F1 floors a new
// configuration must clear.
type PromotionFloors struct {
	Precision float64
	Recall    float64
	F1        float64
}

// DefaultPromotionFloors returns the conservative promotion floors.
func DefaultPromotionFloors() PromotionFloors {
	return PromotionFloors{Precision: 0.135, Recall: 0.160, F1: 0.145}
}

// EvaluatePromotion decides whether newCfg may replace oldCfg. Approval
// requires both a positive fusion gain (the new configuration surfaces at
// least one net-new relevant item on the held-out set) and all quality
// floors holding; failing either rejects regardless of the other.
//
// An invalid candidate configuration is a synchronous error, not a rejection.
func EvaluatePromotion(
	oldCfg, newCfg domain.PipelineConfig,
	heldOut []HeldOutQuery,
	floors PromotionFloors,
) (domain.PromotionDecision, error) {
	if err := newCfg.Validate(); err != nil {
		return domain.PromotionDecision{}, fmt.Errorf("candidate config: %w", err)
	}
	if err := oldCfg.Validate(); err != nil {
		return domain.PromotionDecision{}, fmt.Errorf("current config: %w", err)
	}

	decision := domain.PromotionDecision{ConfigHash: newCfg.Hash()}

	var retrieved, relevantRetrieved, relevantTotal int
	for _, q := range heldOut {
		hints := queryparse.Parse(q.Query)
		oldIDs := resultIDs(fusion.Fuse(q.Lists, hints, oldCfg.Fusion))
		newIDs := resultIDs(fusion.Fuse(q.Lists, hints, newCfg.Fusion))

		relevant := make(map[string]struct{}, len(q.RelevantIDs))
		for _, id := range q.RelevantIDs {
			relevant[id] = struct{}{}
		}
		relevantTotal += len(relevant)
		retrieved += len(newIDs)

		for id := range newIDs {
			if _, ok := relevant[id]; !ok {
				continue
			}
			relevantRetrieved++
			if _, inOld := oldIDs[id]; !inOld {
				decision.FusionGain++
			}
		}
	}

	if retrieved > 0 {
		decision.Precision = float64(relevantRetrieved) / float64(retrieved)
	}
	if relevantTotal > 0 {
		decision.Recall = float64(relevantRetrieved) / float64(relevantTotal)
	}
	if decision.Precision+decision.Recall > 0 {
		decision.F1 = 2 * decision.Precision * decision.Recall / (decision.Precision + decision.Recall)
	}

	decision.FloorsMet = decision.Precision >= floors.Precision &&
		decision.Recall >= floors.Recall &&
		decision.F1 >= floors.F1
	decision.Approved = decision.FusionGain > 0 && decision.FloorsMet

	return decision, nil
}

func resultIDs(results []domain.Candidate) map[string]struct{} {
	ids := make(map[string]struct{}, len(results))
	for _, c := range results {
		ids[c.ID] = struct{}{}
	}
	return ids
}
