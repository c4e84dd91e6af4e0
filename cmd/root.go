package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cluvo",
	Short: "Competitor analysis and customer interview intelligence",
	Long: "Discovers and enriches competitors for a business idea, scores the evidence behind each finding, " +
		"and turns customer interview transcripts into gated business model canvas updates.",
	SilenceUsage: true,
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
