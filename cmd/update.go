package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/postal-cli/internal/config"
	"github.com/sells-group/postal-cli/internal/enrich"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fill in missing concelho/distrito for every incomplete postal code",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("update"); err != nil {
			return err
		}
		apiKey, err := config.ReadAPIKey(cfg.Secrets.Path)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := enrich.New(st, newCTTClient()).BulkUpdate(ctx, apiKey)
		if err != nil {
			return eris.Wrap(err, "bulk update")
		}

		zap.L().Info("update complete",
			zap.Int("candidates", res.Candidates),
			zap.Int("updated", res.Updated),
			zap.Int("skipped", res.Skipped),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "%d postal codes updated successfully.\n", res.Updated) //nolint:errcheck
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
