package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modlink/descriptor"
)

// Define static errors
var (
	ErrValidationFailed  = errors.New("descriptor validation failed")
	ErrBreakingChanges   = errors.New("breaking changes detected")
	ErrUnsupportedOutput = errors.New("unsupported output format")
)

// NewDescriptorCommand creates the descriptor command
func NewDescriptorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "descriptor",
		Aliases: []string{"desc"},
		Short:   "Validate, compare and convert integration descriptors",
		Long: `The descriptor command works on integration descriptor files in any of the
supported encodings: Markdown (.md), YAML (.yaml, .yml), TOML (.toml) and
JSON (.json).

Available subcommands:
  validate  - Check descriptors for missing ids and duplicate entries
  diff      - Compare two versions of a module's descriptor
  convert   - Re-encode a descriptor in another format
  skeleton  - Write an empty descriptor with every mandatory section`,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newDiffCommand())
	cmd.AddCommand(newConvertCommand())
	cmd.AddCommand(newSkeletonCommand())
	return cmd
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate descriptor files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				d, err := descriptor.ReadFile(path)
				if err == nil {
					err = d.Validate()
				}
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s)\n", path, d.ModuleID)
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d files", ErrValidationFailed, failed, len(args))
			}
			return nil
		},
	}
}

func newDiffCommand() *cobra.Command {
	var (
		outputFile   string
		outputFormat string
		ignoreProse  bool
		failBreaking bool
	)

	cmd := &cobra.Command{
		Use:     "diff <old> <new>",
		Aliases: []string{"compare"},
		Short:   "Compare two versions of a descriptor",
		Long: `Compare two descriptor files and list added, removed and modified entries.
Removed entries and changed payload, cell or item types are breaking.

Examples:
  modlink descriptor diff old/inventory.integration.md inventory.integration.md
  modlink descriptor diff a.yaml b.yaml --format json -o diff.json
  modlink descriptor diff a.md b.md --ignore-prose --fail-on-breaking`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldD, err := descriptor.ReadFile(args[0])
			if err != nil {
				return err
			}
			newD, err := descriptor.ReadFile(args[1])
			if err != nil {
				return err
			}

			differ := descriptor.NewDiffer()
			differ.IgnoreProse = ignoreProse
			diff, err := differ.Compare(oldD, newD)
			if err != nil {
				return err
			}

			var out []byte
			switch outputFormat {
			case "markdown", "md":
				out = []byte(diff.Markdown())
			case "json":
				out, err = json.MarshalIndent(diff, "", "  ")
				if err != nil {
					return err
				}
				out = append(out, '\n')
			default:
				return fmt.Errorf("%w: %s", ErrUnsupportedOutput, outputFormat)
			}
			if err := writeOutput(cmd, outputFile, out); err != nil {
				return err
			}

			if failBreaking && diff.Summary.HasBreaking {
				return fmt.Errorf("%w: %d", ErrBreakingChanges, diff.Summary.Breaking)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&outputFormat, "format", "markdown", "Output format: markdown, json")
	cmd.Flags().BoolVar(&ignoreProse, "ignore-prose", false, "Ignore purpose, trigger and example changes")
	cmd.Flags().BoolVar(&failBreaking, "fail-on-breaking", false, "Exit with an error when breaking changes are found")
	return cmd
}

func newConvertCommand() *cobra.Command {
	var (
		to         string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Re-encode a descriptor in another format",
		Long: `Read a descriptor and write it in the format given by --to. Without
--output the result is printed.

Examples:
  modlink descriptor convert inventory.integration.md --to yaml
  modlink descriptor convert inventory.integration.yaml -o inventory.integration.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := descriptor.ReadFile(args[0])
			if err != nil {
				return err
			}
			if outputFile != "" && to == "" {
				return descriptor.WriteFile(outputFile, d)
			}
			if to == "" {
				to = string(descriptor.FormatMarkdown)
			}
			format, err := descriptor.ParseFormat(to)
			if err != nil {
				return err
			}
			data, err := descriptor.Marshal(d, format)
			if err != nil {
				return err
			}
			return writeOutput(cmd, outputFile, data)
		},
	}

	cmd.Flags().StringVarP(&to, "to", "t", "", "Target format: markdown, yaml, toml, json (default: from --output, else markdown)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func newSkeletonCommand() *cobra.Command {
	var (
		format  string
		dir     string
		version string
	)

	cmd := &cobra.Command{
		Use:   "skeleton <module-id>",
		Short: "Write an empty descriptor for a module",
		Long: `Write a descriptor containing only the mandatory sections, ready to be
filled in. With --dir the file is written there under its conventional name;
otherwise it is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := descriptor.ParseFormat(format)
			if err != nil {
				return err
			}
			d := &descriptor.Descriptor{
				ModuleID: args[0],
				Assembly: descriptor.Assembly{Name: args[0], Version: version},
			}
			if dir == "" {
				data, err := descriptor.Marshal(d, f)
				if err != nil {
					return err
				}
				return writeOutput(cmd, "", data)
			}
			path := filepath.Join(dir, descriptor.FileName(args[0], f))
			if err := descriptor.WriteFile(path, d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Descriptor skeleton written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Format: markdown, yaml, toml, json")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Write into this directory (default: stdout)")
	cmd.Flags().StringVar(&version, "version", "", "Assembly version")
	return cmd
}
