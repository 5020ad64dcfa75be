// Command portfolioctl runs maintenance tasks against the portfolio database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"portfolio/internal/util"
	"portfolio/pkg/store"
	"portfolio/services/portfolio/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "portfolioctl",
	Short:         "Maintenance tasks for the portfolio service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			util.InitLogger(lvl)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("PORTFOLIO_CONFIG"), "config file (yaml or toml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level")
	rootCmd.AddCommand(migrateCmd, seedAdminCmd, contactsCmd, pruneSessionsCmd, checkOpenAPICmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// openStore loads config and connects to the configured database, running migrations.
func openStore() (config.FileConfig, *store.GormStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return cfg, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, st, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
