// OpeNSE Risk: portfolio risk analytics and optimization for NSE equities.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seenimoa/openseai-risk/api"
	"github.com/seenimoa/openseai-risk/internal/config"
	"github.com/seenimoa/openseai-risk/internal/engine"
	"github.com/seenimoa/openseai-risk/internal/logger"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by the root PersistentPreRunE.
var (
	cfg *config.Config
	log *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "openseai-risk",
	Short: "OpeNSE Risk: portfolio risk analytics & optimization for NSE stocks",
	Long: `OpeNSE Risk tracks Indian equity portfolios and measures their risk:
historical VaR, beta against NIFTY 50, Sharpe ratio, drawdown, correlation,
concentration, stress scenarios and mean-variance rebalancing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		log, err = logger.New(cfg.Logging)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(portfolioCmd)
	rootCmd.AddCommand(riskCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(stressCmd)
	rootCmd.AddCommand(correlationCmd)
	rootCmd.AddCommand(serveCmd)
}

// withEngine opens the engine for the duration of fn. Ctrl-C cancels the
// context.
func withEngine(fn func(ctx context.Context, e *engine.Engine) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := engine.Open(cfg, log)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(ctx, e)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Version needs no config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("OpeNSE Risk %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		hub := api.NewWSHub()
		e, err := engine.Open(cfg, log, engine.WithPublisher(hub))
		if err != nil {
			return err
		}
		defer e.Close()

		api.Version = version
		srv := api.NewServer(cfg, e, hub, log)
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("🌐 OpeNSE Risk API listening on http://%s\n", addr)
		return srv.ListenAndServe(ctx, addr)
	},
}
