package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/urlsafety/batch-predictor/internal/config"
)

const devVersion = "dev"

var (
	appVersion = devVersion
	commitHash = "dev"
)

var (
	cfg         = config.FromEnv(os.Getenv)
	flagVersion bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "batchpredict",
	Short:         "Batch URL safety predictor",
	Long:          "Submit a CSV of website feature vectors to a remote model and view Safe/Malicious labels.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if flagVersion {
			printVersion(cmd)
			return nil
		}
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.PersistentFlags().AddFlagSet(cfg.NewFlagSet())
	rootCmd.Flags().BoolVarP(&flagVersion, "version", "V", false, "Display version information.")

	serveCmd.Flags().AddFlagSet(cfg.NewServeFlagSet())
	predictCmd.Flags().BoolVar(&flagJSON, "json", false, "Print rows as JSON instead of a table.")

	rootCmd.AddCommand(serveCmd, predictCmd)
}

func printVersion(cmd *cobra.Command) {
	fmt.Fprintf(cmd.OutOrStdout(), "batchpredict\nVersion: %s\nCommit: %s\n", appVersion, commitHash)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
