package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/anvil/am"
	"github.com/teranos/anvil/annotate"
	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/logger"
	"github.com/teranos/anvil/pulse"
	"github.com/teranos/anvil/scatter"
	"github.com/teranos/anvil/sym"
)

// AnnotateCmd runs the annotation pipeline, or scatters it across processes
var AnnotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: sym.Variant + " Annotate the manifest's VCF files",
	Long: sym.Variant + ` annotate - Annotate the manifest's VCF files

Every alternate allele of every data line is translated into a VRS
identifier and checked against the knowledge-base corpus. A metrics file
metrics_<timestamp>_<pid>.yaml is written to the state directory, also when
the error budget is exceeded.

With --scatter, one detached annotate process is launched per input file
and anvil returns immediately; follow them with 'anvil ps --watch'.

Examples:
  anvil annotate
  anvil annotate --max-errors 100
  anvil annotate --scatter -m runs/manifest.yaml`,
	RunE: runAnnotate,
}

func init() {
	AnnotateCmd.Flags().Bool("scatter", false, "Launch one detached annotate process per input file")
	AnnotateCmd.Flags().Int("max-errors", am.DefaultMaxErrors, "Error budget for the run (default from the manifest)")
	AnnotateCmd.Flags().String("timestamp", "", "Timestamp naming the metrics and log files (default now)")
	AnnotateCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(cmd)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return errors.Wrap(err, "invalid manifest")
	}

	maxErrors := m.MaxErrors
	if cmd.Flags().Changed("max-errors") {
		maxErrors, _ = cmd.Flags().GetInt("max-errors")
	}
	timestamp, _ := cmd.Flags().GetString("timestamp")
	if timestamp == "" {
		timestamp = time.Now().Format(logger.TimestampLayout)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if s, _ := cmd.Flags().GetBool("scatter"); s {
		return runScatter(ctx, cmd, m, maxErrors, timestamp)
	}

	if err := InitLogger(cmd, logger.LogFileName(m.StateDirectory, timestamp, os.Getpid())); err != nil {
		return err
	}
	log := logger.Logger.Named("annotate")

	noProgress, _ := cmd.Flags().GetBool("no-progress")
	var progress pulse.ProgressEmitter
	if jsonLogs(cmd) {
		progress = pulse.NewJSONEmitter(cmd.OutOrStdout())
	} else {
		progress = pulse.NewCLIEmitter(verbosity(cmd), m.EstimatedVCFLines, noProgress || m.DisableProgressBars)
	}

	path, metrics, runErr := annotate.New(m, log, annotate.WithProgress(progress)).
		AnnotateAll(ctx, maxErrors, timestamp)
	if metrics == nil {
		return runErr
	}
	if !jsonLogs(cmd) {
		if err := printSummary(metrics, path); err != nil {
			log.Warnw("Failed to render summary", "error", err)
		}
	}
	if runErr != nil && errors.IsBudgetExceeded(runErr) {
		return errors.WithHint(runErr, "raise --max-errors or max_errors in the manifest")
	}
	return runErr
}

func printSummary(metrics *annotate.Metrics, path string) error {
	table, err := annotate.RenderSummary(metrics)
	if err != nil {
		return err
	}
	fmt.Println(table)

	if top := annotate.TopErrors(metrics, 5); len(top) > 0 {
		fmt.Println("Most frequent errors:")
		for _, e := range top {
			fmt.Printf("  %6s  %s\n", e[0], e[1])
		}
	}
	if metrics.Total.Aborted {
		pterm.Warning.Printfln("Run aborted: %s", metrics.Total.AbortReason)
	}
	if path != "" {
		fmt.Printf("Metrics: %s\n", path)
	}
	return nil
}

func runScatter(ctx context.Context, cmd *cobra.Command, m *am.Manifest, maxErrors int, timestamp string) error {
	// Children write their own log files; the parent only logs to the console.
	childArgs := []string{"--no-progress"}
	if v := verbosity(cmd); v > 0 {
		childArgs = append(childArgs, "-"+strings.Repeat("v", v))
	}
	if jsonLogs(cmd) {
		childArgs = append(childArgs, "--json-logs")
	}

	reg, path, err := scatter.Scatter(ctx, m, scatter.Options{
		MaxErrors: maxErrors,
		Timestamp: timestamp,
		Args:      childArgs,
		Logger:    logger.Logger,
	})
	if reg != nil && path != "" {
		fmt.Printf("%s Launched %d processes, registry %s\n", sym.Scatter, len(reg.Processes), path)
		for _, p := range reg.Processes {
			fmt.Printf("  %-8d %s\n", p.PID, p.File)
		}
		fmt.Println("Follow them with: anvil ps --watch")
	}
	return err
}
