package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "gateway",
		Short: "Rate limiting reverse proxy",
		Long: `gateway fica na frente de um upstream HTTP e aplica limites por janela
deslizante: por tier (anon/user/premium, admin passa direto), por categoria
de endpoint e ad-hoc. O estado fica em memória ou no Redis.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file (default .env when present)")

	root.AddCommand(
		newServeCmd(&envFile),
		newPoliciesCmd(&envFile),
		newSimulateCmd(),
		newStatsCmd(&envFile),
	)
	return root
}
