package main

import (
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/export"
	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/internal/pipeline"
)

var (
	analyzeInput model.BusinessInput
	analyzeXLSX  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a competitor analysis for one business idea",
	Long: "Discovers competitors for the idea, enriches them from their sites, the financial provider and " +
		"social search, scores the evidence and prints the report as JSON. A failed run still prints " +
		"whatever the completed stages produced.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := analyzeInput.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initApp(ctx, "analysis")
		if err != nil {
			return err
		}
		defer env.Close()

		rep, runErr := env.Pipeline.Run(ctx, analyzeInput)
		if rep == nil {
			return runErr
		}
		if err := printJSON(os.Stdout, rep); err != nil {
			return err
		}
		if analyzeXLSX != "" {
			if err := writeXLSXFile(analyzeXLSX, rep); err != nil {
				return err
			}
			zap.L().Info("report exported", zap.String("path", analyzeXLSX))
		}

		var fatal *pipeline.FatalError
		if errors.As(runErr, &fatal) {
			zap.L().Error("analysis failed", zap.String("run_id", rep.RunID), zap.String("reason", fatal.Reason))
		}
		return runErr
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeInput.IdeaDescription, "idea", "", "business idea description (required)")
	f.StringVar(&analyzeInput.TargetMarket, "target-market", "", "target market")
	f.StringVar(&analyzeInput.BusinessModel, "business-model", "", "business model")
	f.StringVar(&analyzeInput.GeographicFocus, "geography", "", "geographic focus")
	f.StringVar(&analyzeInput.Industry, "industry", "", "industry")
	f.StringVar(&analyzeXLSX, "xlsx", "", "also write the report as an Excel workbook to this path")
	_ = analyzeCmd.MarkFlagRequired("idea")
	rootCmd.AddCommand(analyzeCmd)
}

func writeXLSXFile(path string, rep *model.CompetitorReport) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create xlsx")
	}
	if err := export.WriteXLSX(f, rep); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "close xlsx")
}
