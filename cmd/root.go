package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/specharvest/internal/config"
	"github.com/sells-group/specharvest/internal/rules"
	"github.com/sells-group/specharvest/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "specharvest",
	Short: "Evidence consensus engine for harvested product specs",
	Long:  "Collapses noisy per-source field observations into trusted values with confidence scores, corroboration gating, and a citation-backed evidence trail.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "specharvest.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initRules(path string) (*rules.Engine, error) {
	if path == "" {
		path = cfg.Rules.Path
	}
	return rules.LoadEngine(path)
}
