package annotate

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pterm/pterm"
)

// SummaryRows returns the per-file summary as table rows, header first and
// the total last. Files are sorted by path.
func SummaryRows(m *Metrics) [][]string {
	rows := [][]string{{"File", "Lines", "Successes", "Errors", "MetaKB hits", "Elapsed"}}

	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		fm := m.Files[p]
		rows = append(rows, []string{
			filepath.Base(p),
			strconv.Itoa(fm.LineCount),
			strconv.Itoa(fm.Successes),
			strconv.Itoa(fm.ErrorCount()),
			strconv.Itoa(fm.MetaKBHits),
			fmt.Sprintf("%.1fs", fm.ElapsedTime),
		})
	}
	t := m.Total
	rows = append(rows, []string{
		"total",
		strconv.Itoa(t.LineCount),
		strconv.Itoa(t.Successes),
		strconv.Itoa(t.Errors),
		strconv.Itoa(t.MetaKBHits),
		fmt.Sprintf("%.1fs", t.ElapsedTime),
	})
	return rows
}

// TopErrors returns up to n error messages across files, most frequent first
func TopErrors(m *Metrics, n int) [][2]string {
	counts := map[string]int{}
	for _, fm := range m.Files {
		for msg, c := range fm.Errors {
			counts[msg] += c
		}
	}
	msgs := make([]string, 0, len(counts))
	for msg := range counts {
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if counts[msgs[i]] != counts[msgs[j]] {
			return counts[msgs[i]] > counts[msgs[j]]
		}
		return msgs[i] < msgs[j]
	})
	if len(msgs) > n {
		msgs = msgs[:n]
	}
	out := make([][2]string, len(msgs))
	for i, msg := range msgs {
		out[i] = [2]string{strconv.Itoa(counts[msg]), msg}
	}
	return out
}

// RenderSummary renders the summary table with pterm
func RenderSummary(m *Metrics) (string, error) {
	return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData(SummaryRows(m))).Srender()
}
