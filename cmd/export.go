package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/specharvest/internal/model"
)

// ledgerColumns defines the ordered candidate-ledger CSV output columns.
var ledgerColumns = []string{
	"Field",
	"Candidate ID",
	"Value",
	"Score",
	"Host",
	"Root Domain",
	"Tier",
	"Method",
	"Approved",
	"URL",
	"Snippet ID",
	"Quote",
}

var (
	exportRunID  string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a run's candidate ledger as CSV for curator review",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, exportRunID)
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if run.Result == nil {
			return eris.Errorf("run %s has no result", exportRunID)
		}

		if err := exportLedgerCSV(run.Result, exportOutput); err != nil {
			return err
		}
		zap.L().Info("export: ledger written",
			zap.String("run_id", exportRunID),
			zap.String("path", exportOutput),
		)
		return nil
	},
}

// exportLedgerCSV writes every field's candidate ledger, field by field in
// sorted order, rows in ledger order.
func exportLedgerCSV(result *model.ConsensusResult, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "ledger export: create file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(ledgerColumns); err != nil {
		return eris.Wrap(err, "ledger export: write header")
	}

	fields := make([]string, 0, len(result.Candidates))
	for field := range result.Candidates {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		for _, c := range result.Candidates[field] {
			row := []string{
				field,
				c.CandidateID,
				c.Value,
				fmt.Sprintf("%.2f", c.Score),
				c.Host,
				c.RootDomain,
				fmt.Sprintf("%d", c.Tier),
				c.Method,
				fmt.Sprintf("%t", c.ApprovedDomain),
				c.URL,
				c.Evidence.SnippetID,
				c.Evidence.Quote,
			}
			if err := w.Write(row); err != nil {
				return eris.Wrap(err, "ledger export: write row")
			}
		}
	}
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "run id to export (required)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "ledger.csv", "output CSV path")
	_ = exportCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(exportCmd)
}
