package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/postal-cli/internal/menu"
	"github.com/sells-group/postal-cli/pkg/postalapi"
)

var clientURL string

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Interactive menu against a running lookup server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if clientURL != "" {
			cfg.Client.BaseURL = clientURL
		}
		if err := cfg.Validate("client"); err != nil {
			return err
		}

		m := &menu.Menu{
			Backend: &menu.RemoteBackend{Client: postalapi.NewClient(cfg.Client.BaseURL)},
			In:      cmd.InOrStdin(),
			Out:     cmd.OutOrStdout(),
		}
		return m.Run(cmd.Context())
	},
}

func init() {
	clientCmd.Flags().StringVar(&clientURL, "url", "", "lookup server base URL (default from config)")
	rootCmd.AddCommand(clientCmd)
}
