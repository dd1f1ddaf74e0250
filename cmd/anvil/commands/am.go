package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/sym"
)

// AmCmd represents the am (manifest) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.Manifest + " Show and validate the run manifest",
	Long: sym.Manifest + ` am - Show and validate the run manifest

Manifest sources (in order of precedence):
1. Environment variables (ANVIL_* prefix, e.g. ANVIL_NUM_THREADS)
2. The manifest file given with --manifest (YAML or TOML)
3. Default values

Examples:
  anvil am show                    # Show the effective manifest
  anvil am show --format json      # Show it as JSON
  anvil am show --sources          # Show where every value comes from
  anvil am validate                # Validate and create directories`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective manifest",
	RunE:  runAmShow,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the manifest",
	Long:  "Validate the manifest and create its work, cache and state directories",
	RunE:  runAmValidate,
}

func init() {
	amShowCmd.Flags().String("format", "yaml", "Output format: yaml, toml, json")
	amShowCmd.Flags().Bool("sources", false, "List every key with its value source")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(cmd)
	if err != nil {
		return err
	}

	if sources, _ := cmd.Flags().GetBool("sources"); sources {
		rows := pterm.TableData{{"Key", "Value", "Source", "Override"}}
		for _, s := range m.Settings() {
			rows = append(rows, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.EnvVar})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	}

	format, _ := cmd.Flags().GetString("format")
	data, err := m.Marshal(format)
	if err != nil {
		return err
	}
	if format == "json" {
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("# anvil manifest %s\n%s", m.Path, data)
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(cmd)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return errors.Wrap(err, "manifest validation failed")
	}
	fmt.Printf("✓ Manifest %s is valid\n", m.Path)
	return nil
}
