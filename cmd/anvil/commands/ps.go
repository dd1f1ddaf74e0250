package commands

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/anvil/display"
	"github.com/teranos/anvil/scatter"
	"github.com/teranos/anvil/sym"
)

// PsCmd reports on the latest scatter run
var PsCmd = &cobra.Command{
	Use:   "ps",
	Short: sym.Scatter + " Show scattered annotate processes",
	Long: sym.Scatter + ` ps - Show scattered annotate processes

Reads the newest scattered_processes_*.yaml registry in the state directory
and shows, per child, whether it is still running, its CPU, memory and IO
when the platform reports them, and its result summary once its metrics
file exists.

Examples:
  anvil ps
  anvil ps --watch
  anvil ps --json`,
	RunE: runPs,
}

func init() {
	PsCmd.Flags().BoolP("watch", "w", false, "Re-render until every process has finished")
	PsCmd.Flags().BoolP("json", "j", false, "Output status as JSON")
}

func runPs(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(cmd)
	if err != nil {
		return err
	}
	reg, path, err := scatter.LatestRegistry(m.StateDirectory)
	if err != nil {
		return err
	}
	if reg == nil {
		fmt.Println("no scattered processes")
		return nil
	}

	asJSON := display.ShouldOutputJSON(cmd)
	printJSON := func(statuses []scatter.ProcessStatus) error {
		return display.WriteJSON(cmd.OutOrStdout(), statuses)
	}
	watch, _ := cmd.Flags().GetBool("watch")
	if !watch {
		statuses := scatter.Status(m.StateDirectory, reg)
		if asJSON {
			return printJSON(statuses)
		}
		fmt.Printf("Registry: %s\n", path)
		table, err := renderStatus(statuses)
		if err != nil {
			return err
		}
		fmt.Println(table)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if asJSON {
		return scatter.Watch(ctx, m.StateDirectory, reg, scatter.WatchOptions{}, printJSON)
	}

	area, err := pterm.DefaultArea.Start()
	if err != nil {
		return err
	}
	defer area.Stop()
	return scatter.Watch(ctx, m.StateDirectory, reg, scatter.WatchOptions{}, func(statuses []scatter.ProcessStatus) error {
		table, err := renderStatus(statuses)
		if err != nil {
			return err
		}
		area.Update("Registry: " + path + "\n" + table)
		return nil
	})
}

func renderStatus(statuses []scatter.ProcessStatus) (string, error) {
	rows := pterm.TableData{{"PID", "File", "State", "CPU%", "RSS", "Read", "Written", "Lines", "Successes", "Errors", "MetaKB hits"}}
	for _, s := range statuses {
		row := []string{
			strconv.Itoa(s.PID),
			filepath.Base(s.File),
			s.State(),
			optFloat(s.CPUPercent),
			optBytes(s.RSSBytes),
			optBytes(s.ReadBytes),
			optBytes(s.WriteBytes),
		}
		switch {
		case s.Summary != nil:
			sum := s.Summary
			errs := strconv.Itoa(sum.Errors)
			if sum.Aborted {
				errs += " (aborted)"
			}
			row = append(row, strconv.Itoa(sum.LineCount), strconv.Itoa(sum.Successes), errs, strconv.Itoa(sum.MetaKBHits))
		case s.MetricsError != "":
			row = append(row, "?", "?", s.MetricsError, "?")
		default:
			row = append(row, "-", "-", "-", "-")
		}
		rows = append(rows, row)
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
}

func optFloat(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", *v)
}

func optBytes(v *uint64) string {
	if v == nil {
		return "n/a"
	}
	return formatBytes(*v)
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
