package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docparse/internal/app"
	"github.com/joseph-ayodele/docparse/internal/llm/ollama"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models installed on the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := ollama.NewClient(app.BackendConfig(cfg.Backend), logger)
		names, err := client.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		for _, n := range names {
			mark := " "
			if n == client.Model() {
				mark = "*"
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, n); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
