package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seenimoa/openseai-risk/internal/engine"
	"github.com/seenimoa/openseai-risk/pkg/utils"
)

func init() {
	optimizeCmd.Flags().Float64("target", 0, "target annual return as a fraction, e.g. 0.15 (default: maximise Sharpe)")
}

// --- Risk Command ---

var riskCmd = &cobra.Command{
	Use:   "risk [portfolio-id]",
	Short: "Compute risk metrics (VaR, beta, Sharpe, drawdown, score)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			m, err := e.ComputeRisk(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println("═══════════════════════════════════════")
			fmt.Println("  Portfolio Risk")
			fmt.Println("═══════════════════════════════════════")
			fmt.Printf("  Total Value:     %s\n", utils.FormatINR(m.TotalValue))
			fmt.Printf("  1-day VaR 95%%:   %s\n", utils.FormatINR(m.VaR95))
			fmt.Printf("  1-day VaR 99%%:   %s\n", utils.FormatINR(m.VaR99))
			fmt.Printf("  Beta:            %.2f\n", m.Beta)
			fmt.Printf("  Sharpe Ratio:    %.2f\n", m.SharpeRatio)
			fmt.Printf("  Volatility:      %s\n", utils.FormatFraction(m.Volatility))
			fmt.Printf("  Max Drawdown:    %s\n", utils.FormatFraction(m.MaxDrawdown))
			fmt.Printf("  Correlation:     %.2f\n", m.CorrelationRisk)
			fmt.Printf("  Concentration:   %.3f\n", m.ConcentrationRisk)
			fmt.Println()
			fmt.Printf("  Risk Score:      %d/100 (%s)\n", m.RiskScore, m.RiskLevel)
			fmt.Printf("  %s\n", m.Recommendation)
			if m.InsufficientData {
				fmt.Println("\n⚠️  Fewer than two usable return series: beta and correlation are defaults.")
			}
			if len(m.DroppedSymbols) > 0 {
				fmt.Printf("⚠️  No history for: %s\n", strings.Join(m.DroppedSymbols, ", "))
			}
			fmt.Println("═══════════════════════════════════════")
			return nil
		})
	},
}

// --- Optimize Command ---

var optimizeCmd = &cobra.Command{
	Use:   "optimize [portfolio-id]",
	Short: "Propose mean-variance optimal weights and rebalancing trades",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var target *float64
		if cmd.Flags().Changed("target") {
			t, _ := cmd.Flags().GetFloat64("target")
			target = &t
		}

		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			res, err := e.Optimize(ctx, args[0], target)
			if err != nil {
				return err
			}
			fmt.Printf("🎯 Objective: %s", res.Objective)
			if res.TargetReturn != nil {
				fmt.Printf(" (target %s)", utils.FormatFraction(*res.TargetReturn))
			}
			fmt.Println()
			fmt.Printf("   Expected return:     %s\n", utils.FormatFraction(res.ExpectedReturn))
			fmt.Printf("   Expected volatility: %s\n", utils.FormatFraction(res.ExpectedVolatility))
			fmt.Printf("   %s\n\n", res.Improvement)

			fmt.Printf("  %-14s %9s %9s\n", "SYMBOL", "CURRENT", "OPTIMAL")
			for _, sym := range sortedKeys(res.Weights) {
				fmt.Printf("  %-14s %8.1f%% %8.1f%%\n", sym, res.CurrentWeights[sym]*100, res.Weights[sym]*100)
			}

			if len(res.Actions) == 0 {
				fmt.Println("\n✅ No rebalancing needed.")
			} else {
				fmt.Println("\n  Rebalancing:")
				for _, a := range res.Actions {
					fmt.Printf("    %-4s %-14s %16s  (%+.1f pts)\n", a.Action, a.Symbol, utils.FormatINR(a.Amount), a.WeightChange)
				}
			}
			if !res.Converged {
				fmt.Printf("\n⚠️  Optimizer did not converge (%s); equal weights shown.\n", res.Degraded)
			}
			return nil
		})
	},
}

// --- Stress Command ---

var stressCmd = &cobra.Command{
	Use:   "stress [portfolio-id]",
	Short: "Apply market shock scenarios",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			results, err := e.StressTest(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("  %-30s %9s %18s\n", "SCENARIO", "SHOCK", "LOSS")
			for _, r := range results {
				fmt.Printf("  %-30s %9s %18s\n", r.Scenario, utils.FormatFraction(r.Shock), utils.FormatINR(r.Loss))
			}
			return nil
		})
	},
}

// --- Correlation Command ---

var correlationCmd = &cobra.Command{
	Use:   "correlation [portfolio-id]",
	Short: "Print the pairwise return correlation matrix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			cm, err := e.CorrelationMatrix(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%-12s", "")
			for _, s := range cm.Symbols {
				fmt.Printf(" %10s", truncate(utils.BaseTicker(s), 10))
			}
			fmt.Println()
			for i, s := range cm.Symbols {
				fmt.Printf("%-12s", truncate(utils.BaseTicker(s), 12))
				for j := range cm.Symbols {
					fmt.Printf(" %10.2f", cm.Values[i][j])
				}
				fmt.Println()
			}
			fmt.Printf("\n%d observations\n", cm.Observations)
			return nil
		})
	},
}
