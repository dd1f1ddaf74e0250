package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/anvil/cmd/anvil/commands"
	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/logger"
)

var rootCmd = &cobra.Command{
	Use:   "anvil",
	Short: "anvil - Variant annotation against the VICC meta-knowledgebase",
	Long: `anvil - Variant annotation against the VICC meta-knowledgebase.

anvil reads VCF files, translates every alternate allele into a GA4GH VRS
identifier through a variant normalization service, and checks each identifier
against the CIViC and MOA knowledge-base corpus. Results are written as a
metrics file per run.

Available commands:
  annotate - Annotate the manifest's VCF files (optionally one process per file)
  ps       - Show scattered annotate processes
  am       - Show and validate the run manifest
  version  - Show version information

Examples:
  anvil annotate                         # Annotate with ./manifest.yaml
  anvil annotate --scatter               # One detached process per input file
  anvil ps --watch                       # Follow scattered processes
  anvil am show --format toml            # Print the effective manifest`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Console logging only; annotate adds the per-process log file once
		// the manifest's state directory is known.
		if err := commands.InitLogger(cmd, ""); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("manifest", "m", "manifest.yaml", "Path to the run manifest (YAML or TOML)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs and progress as JSON lines")

	rootCmd.AddCommand(commands.AnnotateCmd)
	rootCmd.AddCommand(commands.PsCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Cleanup()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		if os.Getenv("ANVIL_DEBUG") != "" {
			fmt.Fprintf(os.Stderr, "%+v\n", err)
		}
		os.Exit(1)
	}
}
