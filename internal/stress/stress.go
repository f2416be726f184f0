// Package stress applies fixed market shocks and the worst observed day
// to a portfolio's current value.
package stress

import (
	"context"

	"go.uber.org/zap"

	"github.com/seenimoa/openseai-risk/internal/logger"
	"github.com/seenimoa/openseai-risk/internal/metrics"
	"github.com/seenimoa/openseai-risk/pkg/models"
)

// WorstHistoricalDay names the scenario derived from portfolio history.
const WorstHistoricalDay = "Worst Historical Day"

// Scenario is a named one-off shock to the whole portfolio.
type Scenario struct {
	Name  string
	Shock float64 // signed fraction
}

// DefaultScenarios are the historical Indian and global drawdowns applied
// to every portfolio.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Name: "Market Crash (-20%)", Shock: -0.20},
		{Name: "Black Monday (-22.6%)", Shock: -0.226},
		{Name: "COVID-19 Crash (-34%)", Shock: -0.34},
		{Name: "2008 Financial Crisis (-37%)", Shock: -0.37},
	}
}

// Apply returns the loss of each scenario on totalValue, followed by the
// worst day of portfolioReturns when that series is non-empty.
func Apply(totalValue float64, portfolioReturns []float64, scenarios []Scenario) []models.StressResult {
	out := make([]models.StressResult, 0, len(scenarios)+1)
	for _, s := range scenarios {
		out = append(out, result(s, totalValue))
	}
	if len(portfolioReturns) > 0 {
		worst := portfolioReturns[0]
		for _, r := range portfolioReturns[1:] {
			worst = min(worst, r)
		}
		out = append(out, result(Scenario{Name: WorstHistoricalDay, Shock: worst}, totalValue))
	}
	return out
}

func result(s Scenario, totalValue float64) models.StressResult {
	loss := totalValue * s.Shock
	if loss < 0 {
		loss = -loss
	}
	return models.StressResult{Scenario: s.Name, Shock: s.Shock, Loss: loss}
}

// Valuer reports a portfolio's current total value.
type Valuer interface {
	TotalValue(ctx context.Context, portfolioID string) (float64, error)
}

// ReturnSource supplies a portfolio's weighted daily return history.
type ReturnSource interface {
	PortfolioReturns(ctx context.Context, portfolioID string) ([]float64, error)
}

// Tester runs the scenarios against live portfolio data.
type Tester struct {
	values    Valuer
	history   ReturnSource
	scenarios []Scenario
	log       *zap.Logger
}

// NewTester creates a tester with the default scenarios.
func NewTester(values Valuer, history ReturnSource, log *zap.Logger) *Tester {
	return &Tester{
		values:    values,
		history:   history,
		scenarios: DefaultScenarios(),
		log:       logger.OrNop(log),
	}
}

// Results runs every scenario. Missing history only omits the historical
// scenario.
func (t *Tester) Results(ctx context.Context, portfolioID string) ([]models.StressResult, error) {
	defer metrics.Time("stress")()

	total, err := t.values.TotalValue(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	returns, err := t.history.PortfolioReturns(ctx, portfolioID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		metrics.Degraded("stress")
		t.log.Warn("history unavailable, omitting historical scenario",
			zap.String("portfolio_id", portfolioID), zap.Error(err))
		returns = nil
	}
	return Apply(total, returns, t.scenarios), nil
}

// Run returns scenario name → loss.
func (t *Tester) Run(ctx context.Context, portfolioID string) (map[string]float64, error) {
	results, err := t.Results(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(results))
	for _, r := range results {
		out[r.Scenario] = r.Loss
	}
	return out, nil
}
