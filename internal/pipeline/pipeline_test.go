package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastfish/assortment-engine/internal/rules"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	base := t.TempDir()
	cfg := DefaultConfig()
	cfg.InputDir = filepath.Join(base, "input")
	cfg.IntermediateDir = filepath.Join(base, "intermediate")
	cfg.OutputDir = filepath.Join(base, "output")
	cfg.RetryAttempts = 1
	require.NoError(t, os.MkdirAll(cfg.InputDir, 0755))
	return cfg
}

func writeFixture(t *testing.T, path string, lines []string) {
	t.Helper()
	var content string
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestResolveWavesOrdersDependencies(t *testing.T) {
	stages := DefaultStages(DefaultConfig(), rules.DefaultRuleConfig(), rules.DefaultReference())

	waves, err := resolveWaves(stages)
	require.NoError(t, err)
	require.Len(t, waves, 4)

	names := func(wave []Stage) []string {
		out := make([]string, 0, len(wave))
		for _, s := range wave {
			out = append(out, s.Name())
		}
		return out
	}

	assert.ElementsMatch(t, []string{
		StageMissingCategory, StageImbalance, StageOvercapacity,
		StageMissedOpportunity, StagePerformance,
	}, names(waves[0]))
	assert.Equal(t, []string{StageBelowMinimum}, names(waves[1]))
	assert.Equal(t, []string{StageReductionGate}, names(waves[2]))
	assert.Equal(t, []string{StageConsolidate}, names(waves[3]))
}

func TestResolveWavesRejectsUnknownDependency(t *testing.T) {
	_, err := resolveWaves([]Stage{&fakeStage{name: "a", deps: []string{"missing"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestResolveWavesRejectsCycle(t *testing.T) {
	_, err := resolveWaves([]Stage{
		&fakeStage{name: "a", deps: []string{"b"}},
		&fakeStage{name: "b", deps: []string{"a"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

type fakeStage struct {
	name string
	deps []string
}

func (f *fakeStage) Name() string        { return f.name }
func (f *fakeStage) DependsOn() []string { return f.deps }
func (f *fakeStage) OutputFile() string  { return f.name + ".csv" }
func (f *fakeStage) Evaluate(ctx context.Context, in *RunInput, out *Outputs) (int, error) {
	return 0, nil
}

func TestRunPeriodEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	period := "202506A"

	// One cluster, ten stores, one SPU. S110 holds 50 units against peers
	// around 11, which should come out of consolidation as a capped
	// reduction.
	obsLines := []string{"store_code,spu_code,category_name,subcategory_name,quantity,sales_amount,recent_sales_units,sell_through_rate"}
	clusterLines := []string{"store_code,cluster_id"}
	climateLines := []string{"store_code,feels_like_temp"}
	quantities := []int{10, 11, 12, 10, 11, 12, 10, 11, 12, 50}
	for i, q := range quantities {
		store := "S10" + strconv.Itoa(i)
		obsLines = append(obsLines, store+",P1,连衣裙,连衣裙,"+strconv.Itoa(q)+",500,5,0.4")
		clusterLines = append(clusterLines, store+",1")
		climateLines = append(climateLines, store+",28")
	}
	writeFixture(t, filepath.Join(cfg.InputDir, "observations_"+period+".csv"), obsLines)
	writeFixture(t, filepath.Join(cfg.InputDir, "clusters_"+period+".csv"), clusterLines)
	writeFixture(t, filepath.Join(cfg.InputDir, "climate_"+period+".csv"), climateLines)

	o := NewOrchestrator(cfg, rules.DefaultRuleConfig(), rules.DefaultReference(), nil)
	out, err := o.RunPeriod(context.Background(), period)
	require.NoError(t, err)

	var overstocked *rules.ConsolidatedRecommendation
	for i, rec := range out.Consolidated() {
		if rec.StoreCode == "S109" && rec.SPUCode == "P1" {
			overstocked = &out.Consolidated()[i]
		}
	}
	require.NotNil(t, overstocked, "expected a consolidated row for the overstocked store")
	assert.Negative(t, overstocked.RecommendedQuantityChange)
	assert.Equal(t, rules.Applied, overstocked.State)
	assert.Equal(t, 1, overstocked.ClusterID)

	summary, ok := out.GateSummary()
	require.True(t, ok)
	assert.Equal(t, summary.TotalCandidates, summary.EligibleForReduction+summary.BlockedTotal)

	// Stage artifacts land on disk.
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "consolidated_"+period+".csv"))
	assert.FileExists(t, filepath.Join(cfg.IntermediateDir, period, StageOvercapacity+".csv"))
	assert.FileExists(t, filepath.Join(cfg.IntermediateDir, period, StageReductionGate+"_summary.csv"))
}

func TestRunPeriodMissingObservationsFails(t *testing.T) {
	cfg := testConfig(t)

	o := NewOrchestrator(cfg, rules.DefaultRuleConfig(), rules.DefaultReference(), nil)
	_, err := o.RunPeriod(context.Background(), "202506A")
	require.Error(t, err)
}

func TestRunPeriodSurvivesMissingOptionalFiles(t *testing.T) {
	cfg := testConfig(t)
	period := "202501B"

	// Observations only: no clusters, climate or manual minimums. The run
	// degrades instead of failing.
	writeFixture(t, filepath.Join(cfg.InputDir, "observations_"+period+".csv"), []string{
		"store_code,spu_code,category_name,subcategory_name,quantity,sales_amount,recent_sales_units,sell_through_rate",
		"S1,P1,毛衣,毛衣,5,100,2,0.3",
		"S2,P1,毛衣,毛衣,6,120,2,0.3",
	})

	o := NewOrchestrator(cfg, rules.DefaultRuleConfig(), rules.DefaultReference(), nil)
	out, err := o.RunPeriod(context.Background(), period)
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestLoadRunInputTolerantHeaders(t *testing.T) {
	cfg := testConfig(t)
	period := "202506A"

	writeFixture(t, filepath.Join(cfg.InputDir, "observations_"+period+".csv"), []string{
		"Store Code,SPU Code,Category Name,Subcategory Name,Quantity,Sales Amount,Recent Sales Units,Sell Through Rate",
		"S1,P1,连衣裙,连衣裙,7,350,3,0.5",
	})
	writeFixture(t, filepath.Join(cfg.InputDir, "clusters_"+period+".csv"), []string{
		"Store Code,Cluster ID",
		"S1,4",
	})
	writeFixture(t, filepath.Join(cfg.InputDir, "climate_"+period+".csv"), []string{
		"Store Code,Feels Like Temp",
		"S1,26.5",
	})

	in, err := LoadRunInput(cfg, period, rules.DefaultReference())
	require.NoError(t, err)
	require.Len(t, in.Observations, 1)

	o := in.Observations[0]
	assert.Equal(t, "S1", o.StoreCode)
	assert.Equal(t, "P1", o.SPUCode)
	assert.Equal(t, 7.0, o.Quantity)
	assert.Equal(t, 4, o.ClusterID)
	require.NotNil(t, in.StoreTemps["S1"])
	assert.Equal(t, 26.5, *in.StoreTemps["S1"])
	assert.Equal(t, rules.Eligible, in.Eligibilities[rules.RowKey{StoreCode: "S1", SPUCode: "P1"}])
}
