package gate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/usecase/fusion"
)

func heldOutFixture(extra int) []HeldOutQuery {
	cands := []domain.Candidate{
		{ID: "irrelevant", DocID: "d0", Content: "unrelated filler content"},
		{ID: "rel", DocID: "d1", Content: "the relevant passage"},
	}
	for i := 0; i < extra; i++ {
		cands = append(cands, domain.Candidate{
			ID:      fmt.Sprintf("noise-%02d", i),
			DocID:   fmt.Sprintf("nd%02d", i),
			Content: fmt.Sprintf("noise passage number %d", i),
		})
	}
	return []HeldOutQuery{{
		Query: "target metrics",
		Lists: []fusion.SourceList{{
			Source: domain.SourceLexical, Weight: 1.0, Kept: true, Candidates: cands,
		}},
		RelevantIDs: []string{"rel"},
	}}
}

func TestEvaluatePromotion_Approved(t *testing.T) {
	oldCfg := domain.DefaultPipelineConfig()
	oldCfg.Fusion.TopK = 1 // old config misses the relevant item

	newCfg := domain.DefaultPipelineConfig()
	newCfg.Fusion.TopK = 2

	decision, err := EvaluatePromotion(oldCfg, newCfg, heldOutFixture(0), DefaultPromotionFloors())
	require.NoError(t, err)

	assert.Equal(t, 1, decision.FusionGain, "new config surfaces one net-new relevant item")
	assert.True(t, decision.FloorsMet)
	assert.True(t, decision.Approved)
	assert.Equal(t, newCfg.Hash(), decision.ConfigHash)
}

func TestEvaluatePromotion_NoGainRejected(t *testing.T) {
	cfg := domain.DefaultPipelineConfig()

	decision, err := EvaluatePromotion(cfg, cfg, heldOutFixture(0), DefaultPromotionFloors())
	require.NoError(t, err)

	assert.Equal(t, 0, decision.FusionGain)
	assert.True(t, decision.FloorsMet, "floors alone are not enough")
	assert.False(t, decision.Approved, "zero fusion gain rejects regardless of floors")
}

func TestEvaluatePromotion_FloorsFailRejected(t *testing.T) {
	oldCfg := domain.DefaultPipelineConfig()
	oldCfg.Fusion.TopK = 1

	newCfg := domain.DefaultPipelineConfig()
	newCfg.Fusion.TopK = 20 // retrieves lots of noise: precision collapses

	decision, err := EvaluatePromotion(oldCfg, newCfg, heldOutFixture(20), DefaultPromotionFloors())
	require.NoError(t, err)

	assert.Positive(t, decision.FusionGain, "gain alone is not enough")
	assert.False(t, decision.FloorsMet)
	assert.False(t, decision.Approved, "floor failure rejects regardless of gain")
}

func TestEvaluatePromotion_InvalidCandidateConfig(t *testing.T) {
	bad := domain.DefaultPipelineConfig()
	bad.Fusion.MMRLambda = 1.5

	_, err := EvaluatePromotion(domain.DefaultPipelineConfig(), bad, heldOutFixture(0), DefaultPromotionFloors())
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestEvaluatePromotion_EmptyHeldOutSet(t *testing.T) {
	decision, err := EvaluatePromotion(
		domain.DefaultPipelineConfig(), domain.DefaultPipelineConfig(), nil, DefaultPromotionFloors())
	require.NoError(t, err)

	assert.False(t, decision.Approved, "no evidence of gain means no promotion")
}
