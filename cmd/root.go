// Package cmd defines the loanscraper CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/loan-rate-crawler/internal/config"
	"github.com/JakeFAU/loan-rate-crawler/internal/forwarder"
	"github.com/JakeFAU/loan-rate-crawler/internal/logging"
	"github.com/JakeFAU/loan-rate-crawler/internal/scraper"
	"github.com/JakeFAU/loan-rate-crawler/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the service surface the subcommands use. Tests swap in their own.
type App interface {
	Scraper() *scraper.Pipeline
	Forwarder() *forwarder.Forwarder
	Logger() *zap.Logger
	Serve(ctx context.Context) error
	Listen(ctx context.Context) error
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return server.Build(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "loanscraper",
		Short: "Scrapes personal-loan rates and forwards storage events to a workflow webhook.",
		Long: `loanscraper fetches a published table of personal-loan interest rates, classifies each
bank's offer into income and credit-score bands, and prints or stores the result. It also
serves a CSV upload form and relays object-storage notifications to an n8n webhook.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(
		newScrapeCmd(),
		newServeCmd(),
		newListenCmd(),
		newForwardCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
