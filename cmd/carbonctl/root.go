package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "carbonctl",
		Short: "Operate the carbon ledger",
		Long: `carbonctl inspects the emission factor table, estimates the footprint of an
activity without touching the ledger, and applies the Postgres schema.`,
		SilenceUsage: true,
	}
	root.AddCommand(newFactorsCmd(), newEstimateCmd(), newMigrateCmd())
	return root
}
