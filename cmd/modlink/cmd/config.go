package cmd

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modlink"
)

// NewConfigCommand creates the config command
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration samples and documentation",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	var (
		format     string
		outputFile string
	)
	sampleCmd := &cobra.Command{
		Use:   "sample",
		Short: "Print a configuration file with every default filled in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := modlink.GenerateSampleConfig(&modlink.Config{}, format)
			if err != nil {
				return err
			}
			return writeOutput(cmd, outputFile, data)
		},
	}
	sampleCmd.Flags().StringVarP(&format, "format", "f", "yaml", "Format: yaml, toml, json")
	sampleCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	docsCmd := &cobra.Command{
		Use:   "docs",
		Short: "Describe every configuration key and its environment variable",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			docs := modlink.ConfigFieldDocs(&modlink.Config{})
			for _, key := range slices.Sorted(maps.Keys(docs)) {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %-28s %s\n", key, EnvPrefix+"_"+strings.ToUpper(key), docs[key])
			}
		},
	}

	cmd.AddCommand(sampleCmd, docsCmd)
	return cmd
}
