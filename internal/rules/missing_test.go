package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clusterObs(cluster int, store, spu, category, subcategory string, qty float64) StoreProductObservation {
	return StoreProductObservation{
		StoreCode:       store,
		SPUCode:         spu,
		CategoryName:    category,
		SubcategoryName: subcategory,
		Quantity:        qty,
		ClusterID:       cluster,
	}
}

func TestMissingCategoryRecommendsPeerStockedSPU(t *testing.T) {
	r := NewMissingCategoryRule(DefaultRuleConfig(), DefaultReference())

	// Three of four stores stock P1; the fourth gets an ADD sized from the
	// peer median.
	obs := []StoreProductObservation{
		clusterObs(1, "S1", "P1", "直筒裤", "直筒裤", 4),
		clusterObs(1, "S2", "P1", "直筒裤", "直筒裤", 6),
		clusterObs(1, "S3", "P1", "直筒裤", "直筒裤", 8),
		clusterObs(1, "S4", "P2", "直筒裤", "直筒裤", 5),
		clusterObs(1, "S1", "P2", "直筒裤", "直筒裤", 5),
		clusterObs(1, "S2", "P2", "直筒裤", "直筒裤", 5),
		clusterObs(1, "S3", "P2", "直筒裤", "直筒裤", 5),
	}

	recs := r.Evaluate(obs, nil, "202506A")

	require.Len(t, recs, 1)
	assert.Equal(t, "S4", recs[0].StoreCode)
	assert.Equal(t, "P1", recs[0].SPUCode)
	assert.Equal(t, "ADD", recs[0].Recommendation)
	assert.Equal(t, SourceMissingCategory, recs[0].Source)
	assert.Equal(t, 6.0, recs[0].QuantityChange) // median of 4,6,8
	assert.Equal(t, 1, recs[0].ClusterID)
}

func TestMissingCategoryRespectsPeerRatio(t *testing.T) {
	cfg := DefaultRuleConfig()
	cfg.MissingPeerRatio = 0.75
	r := NewMissingCategoryRule(cfg, DefaultReference())

	// Only two of four stores stock P1: below the 75% ratio, no ADD.
	obs := []StoreProductObservation{
		clusterObs(1, "S1", "P1", "直筒裤", "直筒裤", 4),
		clusterObs(1, "S2", "P1", "直筒裤", "直筒裤", 6),
		clusterObs(1, "S3", "P2", "直筒裤", "直筒裤", 5),
		clusterObs(1, "S4", "P2", "直筒裤", "直筒裤", 5),
		clusterObs(1, "S1", "P2", "直筒裤", "直筒裤", 5),
		clusterObs(1, "S2", "P2", "直筒裤", "直筒裤", 5),
	}

	recs := r.Evaluate(obs, nil, "202506A")
	assert.Empty(t, recs)
}

func TestMissingCategorySkipsIneligibleStores(t *testing.T) {
	r := NewMissingCategoryRule(DefaultRuleConfig(), DefaultReference())

	// Down jackets in June: every candidate store is season-ineligible.
	obs := []StoreProductObservation{
		clusterObs(1, "S1", "P1", "羽绒服", "羽绒服", 4),
		clusterObs(1, "S2", "P1", "羽绒服", "羽绒服", 6),
		clusterObs(1, "S3", "P2", "羽绒服", "羽绒服", 5),
		clusterObs(1, "S1", "P2", "羽绒服", "羽绒服", 5),
		clusterObs(1, "S2", "P2", "羽绒服", "羽绒服", 5),
	}

	recs := r.Evaluate(obs, map[string]*float64{"S3": fptr(28)}, "202506A")
	assert.Empty(t, recs)

	// Same data in January: the add goes through.
	recs = r.Evaluate(obs, map[string]*float64{"S3": fptr(5)}, "202501A")
	require.Len(t, recs, 1)
	assert.Equal(t, "S3", recs[0].StoreCode)
	assert.Equal(t, "P1", recs[0].SPUCode)
}

func TestMissingCategoryIgnoresTinyClusters(t *testing.T) {
	r := NewMissingCategoryRule(DefaultRuleConfig(), DefaultReference())

	obs := []StoreProductObservation{
		clusterObs(1, "S1", "P1", "直筒裤", "直筒裤", 4),
	}
	assert.Empty(t, r.Evaluate(obs, nil, "202506A"))
}
