package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/anvil/am"
	"github.com/teranos/anvil/logger"
)

// InitLogger (re)initializes the global logger from the root flags. A
// non-empty logFile adds the per-process JSON log file.
func InitLogger(cmd *cobra.Command, logFile string) error {
	return logger.Initialize(logger.Options{
		JSON:      jsonLogs(cmd),
		Verbosity: verbosity(cmd),
		LogFile:   logFile,
	})
}

func verbosity(cmd *cobra.Command) int {
	v, _ := cmd.Flags().GetCount("verbose")
	return v
}

func jsonLogs(cmd *cobra.Command) bool {
	j, _ := cmd.Flags().GetBool("json-logs")
	return j
}

func manifestPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("manifest")
	if p == "" {
		return "manifest.yaml"
	}
	return p
}

func loadManifest(cmd *cobra.Command) (*am.Manifest, error) {
	return am.Load(manifestPath(cmd))
}
