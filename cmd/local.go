package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/postal-cli/internal/config"
	"github.com/sells-group/postal-cli/internal/enrich"
	"github.com/sells-group/postal-cli/internal/menu"
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Interactive menu working directly on the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("local"); err != nil {
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

		m := &menu.Menu{
			Backend: &menu.LocalBackend{Store: st, Enricher: enrich.New(st, newCTTClient())},
			In:      cmd.InOrStdin(),
			Out:     cmd.OutOrStdout(),
			APIKey:  apiKey,
		}
		return m.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(localCmd)
}
