package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/specharvest/internal/consensus"
	"github.com/sells-group/specharvest/internal/store"
)

var (
	batchDir     string
	batchRules   string
	batchOutDir  string
	batchPersist bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve a directory of product input files concurrently",
	Long:  "Each *.json file in the directory is one product. Products resolve in parallel; one product failing never aborts the rest.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, err := initRules(batchRules)
		if err != nil {
			return err
		}

		entries, err := os.ReadDir(batchDir)
		if err != nil {
			return eris.Wrapf(err, "read input dir %s", batchDir)
		}
		var paths []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				paths = append(paths, filepath.Join(batchDir, e.Name()))
			}
		}
		sort.Strings(paths)
		if len(paths) == 0 {
			zap.L().Warn("batch: no input files found", zap.String("dir", batchDir))
			return nil
		}

		var st store.Store
		if batchPersist {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
		}

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Batch.MaxConcurrentProducts)

		var failed atomic.Int64
		for _, path := range paths {
			g.Go(func() error {
				in, err := loadInput(path)
				if err != nil {
					// Per-product isolation: log and move on.
					zap.L().Error("batch: bad input", zap.String("path", path), zap.Error(err))
					failed.Add(1)
					return nil
				}
				if cfg.Consensus.AllowBelowPassTargetFill {
					in.AllowBelowPassTargetFill = true
				}

				result := consensus.Resolve(in, eng)

				if st != nil {
					run, err := st.CreateRun(ctx, in.ProductID, in.Category)
					if err != nil {
						zap.L().Error("batch: create run", zap.String("product_id", in.ProductID), zap.Error(err))
						failed.Add(1)
						return nil
					}
					if err := st.CompleteRun(ctx, run.ID, result); err != nil {
						zap.L().Error("batch: persist run", zap.String("run_id", run.ID), zap.Error(err))
						failed.Add(1)
						return nil
					}
				}

				if batchOutDir != "" {
					out := filepath.Join(batchOutDir, in.ProductID+".json")
					if err := writeResult(result, out); err != nil {
						zap.L().Error("batch: write result", zap.String("path", out), zap.Error(err))
						failed.Add(1)
						return nil
					}
				}

				zap.L().Info("batch: product resolved",
					zap.String("product_id", in.ProductID),
					zap.Float64("agreement_score", result.AgreementScore),
					zap.Int("fields_below_pass_target", len(result.FieldsBelowPassTarget)),
				)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		zap.L().Info("batch: complete",
			zap.Int("products", len(paths)),
			zap.Int64("failed", failed.Load()),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "directory of product input JSON files (required)")
	batchCmd.Flags().StringVar(&batchRules, "rules", "", "field rules YAML (default from config)")
	batchCmd.Flags().StringVar(&batchOutDir, "out-dir", "", "write per-product result files here")
	batchCmd.Flags().BoolVar(&batchPersist, "persist", false, "persist runs to the store")
	_ = batchCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(batchCmd)
}
