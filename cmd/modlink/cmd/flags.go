package cmd

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modlink/descriptor"
	"github.com/GoCodeAlone/modlink/discovery"
)

// NewFlagsCommand creates the flags command
func NewFlagsCommand(opts *globalOptions) *cobra.Command {
	var (
		installed    []string
		outputFormat string
		noCorpus     bool
	)

	cmd := &cobra.Command{
		Use:   "flags <manifest>",
		Short: "Evaluate a manifest's optional-integration capability flags",
		Long: `Evaluate the capability flags of a module manifest. A flag is set when the
dependency's module is installed at its minimum version or later.

Installed modules are taken from the descriptor corpus (module id and assembly
version) and from --installed module=version pairs, which take precedence.

Examples:
  modlink flags hud.manifest.yaml
  modlink flags hud.manifest.toml --installed inventory=1.4.0 --no-corpus
  modlink flags hud.manifest.json --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := descriptor.LoadManifest(args[0])
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return err
			}

			versions := make(map[string]string)
			if !noCorpus {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				ds, err := discovery.NewDirCorpus(cfg.CorpusDir).Read(cmd.Context())
				if err != nil {
					return err
				}
				for _, d := range ds {
					versions[d.ModuleID] = d.Assembly.Version
				}
			}
			for _, pair := range installed {
				module, version, _ := strings.Cut(pair, "=")
				versions[strings.TrimSpace(module)] = strings.TrimSpace(version)
			}

			flags := m.CapabilityFlags(versions)
			switch outputFormat {
			case "env":
				for _, name := range slices.Sorted(maps.Keys(flags)) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s=%t\n", name, flags[name])
				}
				return nil
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(flags)
			default:
				return fmt.Errorf("%w: %s", ErrUnsupportedOutput, outputFormat)
			}
		},
	}

	cmd.Flags().StringSliceVar(&installed, "installed", nil, "Installed module as module=version (repeatable)")
	cmd.Flags().StringVar(&outputFormat, "format", "env", "Output format: env, json")
	cmd.Flags().BoolVar(&noCorpus, "no-corpus", false, "Do not read installed modules from the descriptor corpus")
	return cmd
}
