package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/specharvest/internal/consensus"
	"github.com/sells-group/specharvest/internal/model"
)

var (
	resolveInput   string
	resolveRules   string
	resolveOutput  string
	resolvePersist bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Run consensus for a single product input file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		in, err := loadInput(resolveInput)
		if err != nil {
			return err
		}
		eng, err := initRules(resolveRules)
		if err != nil {
			return err
		}
		if cfg.Consensus.AllowBelowPassTargetFill {
			in.AllowBelowPassTargetFill = true
		}

		result := consensus.Resolve(in, eng)

		if resolvePersist {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}

			run, err := st.CreateRun(ctx, in.ProductID, in.Category)
			if err != nil {
				return err
			}
			if err := st.CompleteRun(ctx, run.ID, result); err != nil {
				return err
			}
			zap.L().Info("resolve: run persisted",
				zap.String("run_id", run.ID),
				zap.String("product_id", in.ProductID),
			)
		}

		return writeResult(result, resolveOutput)
	},
}

func loadInput(path string) (*model.ConsensusInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read input %s", path)
	}
	var in model.ConsensusInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, eris.Wrapf(err, "parse input %s", path)
	}
	if in.ProductID == "" {
		return nil, eris.Errorf("input %s: product_id is required", path)
	}
	return &in, nil
}

func writeResult(result *model.ConsensusResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal result")
	}
	data = append(data, '\n')

	if path == "" || path == "-" {
		_, err = os.Stdout.Write(data)
		return eris.Wrap(err, "write result")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "write result %s", path)
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveInput, "input", "i", "", "product input JSON file (required)")
	resolveCmd.Flags().StringVar(&resolveRules, "rules", "", "field rules YAML (default from config)")
	resolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", "", "output file (default stdout)")
	resolveCmd.Flags().BoolVar(&resolvePersist, "persist", false, "persist the run to the store")
	_ = resolveCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(resolveCmd)
}
