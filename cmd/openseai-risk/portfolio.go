package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/seenimoa/openseai-risk/internal/engine"
	"github.com/seenimoa/openseai-risk/internal/store"
	"github.com/seenimoa/openseai-risk/pkg/utils"
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Manage portfolios, holdings and transactions",
}

func init() {
	portfolioCmd.AddCommand(
		portfolioCreateCmd,
		portfolioListCmd,
		portfolioShowCmd,
		portfolioAddCmd,
		portfolioSellCmd,
		portfolioDividendCmd,
		portfolioRefreshCmd,
		portfolioHistoryCmd,
		portfolioSnapshotCmd,
	)

	portfolioCreateCmd.Flags().Float64("cash", 0, "initial cash in INR (default from config)")
	portfolioCreateCmd.Flags().String("risk-profile", "", "Conservative, Moderate or Aggressive")
	portfolioCreateCmd.Flags().StringSlice("goal", nil, "investment goal (repeatable)")

	for _, c := range []*cobra.Command{portfolioAddCmd, portfolioSellCmd} {
		c.Flags().String("fees", "0", "brokerage and charges in INR")
		c.Flags().String("date", "", "trade date YYYY-MM-DD (default today)")
	}
	portfolioAddCmd.Flags().String("sector", "", "sector override")
	portfolioAddCmd.Flags().String("company", "", "company name override")
	portfolioDividendCmd.Flags().String("date", "", "payment date YYYY-MM-DD (default today)")
	for _, c := range []*cobra.Command{portfolioAddCmd, portfolioSellCmd, portfolioDividendCmd} {
		c.Flags().String("note", "", "ledger note (default describes the transaction)")
	}
	portfolioSnapshotCmd.Flags().Bool("list", false, "list stored snapshots instead of taking one")
}

// --- Create / List / Show ---

var portfolioCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a portfolio",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cash, _ := cmd.Flags().GetFloat64("cash")
		if !cmd.Flags().Changed("cash") {
			cash = cfg.Portfolio.DefaultInitialCash
		}
		profile, _ := cmd.Flags().GetString("risk-profile")
		if profile == "" {
			profile = cfg.Portfolio.DefaultRiskProfile
		}
		goals, _ := cmd.Flags().GetStringSlice("goal")

		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			id, err := e.CreatePortfolio(ctx, store.CreatePortfolioInput{
				Name:        args[0],
				InitialCash: decimal.NewFromFloat(cash),
				RiskProfile: profile,
				Goals:       goals,
			})
			if err != nil {
				return err
			}
			fmt.Printf("✅ Created portfolio %q\n", args[0])
			fmt.Printf("   ID:   %s\n", id)
			fmt.Printf("   Cash: %s\n", utils.FormatINR(cash))
			return nil
		})
	},
}

var portfolioListCmd = &cobra.Command{
	Use:   "list",
	Short: "List portfolios",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			list, err := e.ListPortfolios(ctx)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No portfolios yet. Create one with: openseai-risk portfolio create <name>")
				return nil
			}
			fmt.Printf("%-36s  %-20s  %-12s  %18s  %8s\n", "ID", "NAME", "PROFILE", "VALUE", "RETURN")
			for _, p := range list {
				fmt.Printf("%-36s  %-20s  %-12s  %18s  %8s\n",
					p.PortfolioID, truncate(p.Name, 20), p.RiskProfile,
					utils.FormatINR(p.CurrentValue), utils.FormatPct(p.ReturnPct))
			}
			return nil
		})
	},
}

var portfolioShowCmd = &cobra.Command{
	Use:   "show [portfolio-id]",
	Short: "Show holdings and valuation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			s, err := e.GetSummary(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println("═══════════════════════════════════════")
			fmt.Printf("  %s (%s)\n", s.Name, s.RiskProfile)
			fmt.Println("═══════════════════════════════════════")
			fmt.Printf("  Total Value:   %s\n", utils.FormatINR(s.TotalValue))
			fmt.Printf("  Cash:          %s\n", utils.FormatINR(s.CashBalance))
			fmt.Printf("  Invested:      %s\n", utils.FormatINR(s.TotalInvestment))
			fmt.Printf("  Return:        %s (%s)\n", utils.FormatINR(s.TotalReturn), utils.FormatPct(s.TotalReturnPct))
			fmt.Println()
			if len(s.Holdings) > 0 {
				fmt.Printf("  %-14s %-10s %6s %14s %16s %8s %7s\n", "SYMBOL", "SECTOR", "QTY", "PRICE", "VALUE", "P&L", "WEIGHT")
				for _, h := range s.Holdings {
					fmt.Printf("  %-14s %-10s %6d %14s %16s %8s %6.1f%%\n",
						h.Symbol, truncate(h.Sector, 10), h.Quantity,
						utils.FormatINR(h.CurrentPrice), utils.FormatINR(h.CurrentValue),
						utils.FormatPct(h.PnLPct), h.Weight)
				}
				fmt.Println()
			}
			if len(s.SectorAllocation) > 0 {
				fmt.Println("  Sector Allocation:")
				for _, sector := range sortedKeys(s.SectorAllocation) {
					fmt.Printf("    %-12s %6.1f%%  (target %.1f%%)\n", sector, s.SectorAllocation[sector], s.TargetAllocation[sector])
				}
			}
			fmt.Println("═══════════════════════════════════════")
			return nil
		})
	},
}

// --- Transactions ---

var portfolioAddCmd = &cobra.Command{
	Use:   "add [portfolio-id] [symbol] [quantity] [price]",
	Short: "Buy shares (weighted-average top-up for existing holdings)",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, price, err := parseTrade(args[2], args[3])
		if err != nil {
			return err
		}
		fees, at, err := tradeFlags(cmd)
		if err != nil {
			return err
		}
		sector, _ := cmd.Flags().GetString("sector")
		company, _ := cmd.Flags().GetString("company")
		note, _ := cmd.Flags().GetString("note")

		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			if _, err := e.AddHolding(ctx, args[0], store.AddHoldingInput{
				Symbol: args[1], Quantity: qty, Price: price, Fees: fees, At: at,
				Sector: sector, CompanyName: company, Note: note,
			}); err != nil {
				return err
			}
			fmt.Printf("✅ Bought %d %s @ %s\n", qty, utils.NormalizeSymbol(args[1]), utils.FormatINR(price.InexactFloat64()))
			return nil
		})
	},
}

var portfolioSellCmd = &cobra.Command{
	Use:   "sell [portfolio-id] [symbol] [quantity] [price]",
	Short: "Sell shares",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, price, err := parseTrade(args[2], args[3])
		if err != nil {
			return err
		}
		fees, at, err := tradeFlags(cmd)
		if err != nil {
			return err
		}
		note, _ := cmd.Flags().GetString("note")

		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			if _, err := e.SellHolding(ctx, args[0], store.SellInput{
				Symbol: args[1], Quantity: qty, Price: price, Fees: fees, At: at, Note: note,
			}); err != nil {
				return err
			}
			fmt.Printf("✅ Sold %d %s @ %s\n", qty, utils.NormalizeSymbol(args[1]), utils.FormatINR(price.InexactFloat64()))
			return nil
		})
	},
}

var portfolioDividendCmd = &cobra.Command{
	Use:   "dividend [portfolio-id] [symbol] [amount]",
	Short: "Record a cash dividend",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[2], err)
		}
		dateStr, _ := cmd.Flags().GetString("date")
		at, err := parseDate(dateStr)
		if err != nil {
			return err
		}
		note, _ := cmd.Flags().GetString("note")

		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			if _, err := e.RecordDividend(ctx, args[0], store.DividendInput{
				Symbol: args[1], Amount: amount, At: at, Note: note,
			}); err != nil {
				return err
			}
			fmt.Printf("✅ Dividend of %s from %s recorded\n", utils.FormatINR(amount.InexactFloat64()), utils.NormalizeSymbol(args[1]))
			return nil
		})
	},
}

var portfolioRefreshCmd = &cobra.Command{
	Use:   "refresh [portfolio-id]",
	Short: "Refresh last prices from the market-data provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			prices, err := e.RefreshPrices(ctx, args[0])
			if err != nil {
				return err
			}
			for _, sym := range sortedKeys(prices) {
				fmt.Printf("  %-14s %14s\n", sym, utils.FormatINR(prices[sym]))
			}
			fmt.Printf("🔄 Refreshed %d prices\n", len(prices))
			return nil
		})
	},
}

var portfolioHistoryCmd = &cobra.Command{
	Use:   "history [portfolio-id]",
	Short: "Show the transaction ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			txs, err := e.Transactions(ctx, args[0])
			if err != nil {
				return err
			}
			if len(txs) == 0 {
				fmt.Println("No transactions.")
				return nil
			}
			fmt.Printf("%-10s  %-8s  %-14s  %6s  %14s  %16s  %s\n", "DATE", "TYPE", "SYMBOL", "QTY", "PRICE", "AMOUNT", "NOTE")
			for _, t := range txs {
				fmt.Printf("%-10s  %-8s  %-14s  %6d  %14s  %16s  %s\n",
					utils.FormatDateIST(t.ExecutedAt), t.Type, t.Symbol, t.Quantity,
					utils.FormatINR(t.Price.InexactFloat64()), utils.FormatINR(t.Amount().InexactFloat64()),
					truncate(t.Note, 40))
			}
			return nil
		})
	},
}

var portfolioSnapshotCmd = &cobra.Command{
	Use:   "snapshot [portfolio-id]",
	Short: "Record a valuation snapshot (or --list them)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, _ := cmd.Flags().GetBool("list")
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			if list {
				snaps, err := e.Snapshots(ctx, args[0])
				if err != nil {
					return err
				}
				for _, s := range snaps {
					fmt.Printf("%-10s  %16s  cash %s\n", utils.FormatDateIST(s.TakenAt),
						utils.FormatINR(s.TotalValue), utils.FormatINR(s.CashBalance))
				}
				return nil
			}
			s, err := e.TakeSnapshot(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("📸 Snapshot %s: %s\n", s.ID, utils.FormatINR(s.TotalValue))
			return nil
		})
	},
}

// --- Helpers ---

func parseTrade(qtyArg, priceArg string) (int64, decimal.Decimal, error) {
	var qty int64
	if _, err := fmt.Sscan(qtyArg, &qty); err != nil {
		return 0, decimal.Zero, fmt.Errorf("invalid quantity %q", qtyArg)
	}
	price, err := decimal.NewFromString(priceArg)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("invalid price %q: %w", priceArg, err)
	}
	return qty, price, nil
}

func tradeFlags(cmd *cobra.Command) (decimal.Decimal, time.Time, error) {
	feesStr, _ := cmd.Flags().GetString("fees")
	fees, err := decimal.NewFromString(feesStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("invalid fees %q: %w", feesStr, err)
	}
	dateStr, _ := cmd.Flags().GetString("date")
	at, err := parseDate(dateStr)
	return fees, at, err
}

// parseDate reads YYYY-MM-DD in IST; empty means now.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, utils.IST)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
