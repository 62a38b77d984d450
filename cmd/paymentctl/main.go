package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:     "paymentctl",
		Short:   "Operational tasks for the payments service",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadConfig(envFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "path to the env file")

	// Add subcommands
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(repairFlagsCmd)
	rootCmd.AddCommand(queryStatusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
