package stress

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/openseai-risk/pkg/models"
)

type fakeValuer float64

func (v fakeValuer) TotalValue(context.Context, string) (float64, error) { return float64(v), nil }

type fakeHistory struct {
	returns []float64
	err     error
}

func (h fakeHistory) PortfolioReturns(context.Context, string) ([]float64, error) {
	return h.returns, h.err
}

func TestApplyMarketCrash(t *testing.T) {
	results := Apply(1_000_000, nil, []Scenario{{Name: "Market Crash (-20%)", Shock: -0.20}})
	require.Len(t, results, 1)
	assert.InDelta(t, 200_000, results[0].Loss, 1e-6)
	assert.Equal(t, -0.20, results[0].Shock)
}

func TestApplyDefaultScenarios(t *testing.T) {
	results := Apply(1_000_000, []float64{0.01, -0.043, 0.02}, DefaultScenarios())
	require.Len(t, results, 5)

	want := map[string]float64{
		"Market Crash (-20%)":          200_000,
		"Black Monday (-22.6%)":        226_000,
		"COVID-19 Crash (-34%)":        340_000,
		"2008 Financial Crisis (-37%)": 370_000,
		WorstHistoricalDay:             43_000,
	}
	for _, r := range results {
		assert.InDelta(t, want[r.Scenario], r.Loss, 1e-6, r.Scenario)
		assert.GreaterOrEqual(t, r.Loss, 0.0)
	}
	assert.Equal(t, WorstHistoricalDay, results[4].Scenario)
}

func TestApplyWorstDayGainIsStillNonNegative(t *testing.T) {
	results := Apply(1000, []float64{0.02, 0.01}, nil)
	require.Len(t, results, 1)
	assert.InDelta(t, 10, results[0].Loss, 1e-9)
}

func TestRun(t *testing.T) {
	tester := NewTester(fakeValuer(500_000), fakeHistory{returns: []float64{-0.05, 0.01}}, nil)
	losses, err := tester.Run(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, losses, 5)
	assert.InDelta(t, 25_000, losses[WorstHistoricalDay], 1e-9)
}

func TestRunWithoutHistoryOmitsHistoricalScenario(t *testing.T) {
	h := fakeHistory{err: fmt.Errorf("%w: feed down", models.ErrDataUnavailable)}
	losses, err := NewTester(fakeValuer(1_000_000), h, nil).Run(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, losses, 4)
	assert.NotContains(t, losses, WorstHistoricalDay)
	assert.InDelta(t, 200_000, losses["Market Crash (-20%)"], 1e-6)
}

type failingValuer struct{}

func (failingValuer) TotalValue(context.Context, string) (float64, error) {
	return 0, models.ErrNotFound
}

func TestRunUnknownPortfolio(t *testing.T) {
	_, err := NewTester(failingValuer{}, fakeHistory{}, nil).Run(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
