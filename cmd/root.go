package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/postal-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "postal-cli",
	Short: "Portuguese postal code lookup and enrichment",
	Long:  "Stores postal codes with their concelho and distrito, fills in missing regions from the CTT lookup API, and serves them over HTTP or an interactive menu.",
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
