package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modlink/descriptor"
	"github.com/GoCodeAlone/modlink/discovery"
)

// NewDiscoverCommand creates the discover command
func NewDiscoverCommand(opts *globalOptions) *cobra.Command {
	var (
		purpose     string
		keywords    []string
		interactive bool
		planFile    string
		draftFile   string
		commitFile  string
	)

	cmd := &cobra.Command{
		Use:   "discover <module-id>",
		Short: "Plan a new module against the descriptor corpus",
		Long: `Read every integration descriptor in the corpus, classify each shared
artifact as relevant or not to the new module and print the integration plan.

Without --commit the plan is only printed and the corpus is left untouched.
With --commit the given descriptor is validated and written to the corpus as
the module's descriptor; when the module already had one, the differences are
printed.

Examples:
  modlink discover hud --purpose "show score and inventory"
  modlink discover hud --keyword score --keyword item --draft hud.integration.md
  modlink discover hud --commit hud.integration.md
  modlink discover hud --interactive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := NewLogger(cfg, cmd.ErrOrStderr())
			corpus := discovery.NewDirCorpus(cfg.CorpusDir, discovery.WithCorpusLogger(logger))

			var classifier discovery.Classifier = discovery.NewKeywordClassifier()
			if interactive {
				classifier = &surveyClassifier{opts: promptStdio(cmd), fallback: classifier}
			}

			process, err := discovery.NewProcess(corpus, discovery.WithClassifier(classifier), discovery.WithLogger(logger))
			if err != nil {
				return err
			}
			plan, err := process.Begin(cmd.Context(), discovery.Request{
				ModuleID: args[0],
				Purpose:  purpose,
				Keywords: keywords,
			})
			if err != nil {
				return err
			}
			if sc, ok := classifier.(*surveyClassifier); ok && sc.err != nil {
				_ = process.Abort(cmd.Context())
				return fmt.Errorf("interactive classification: %w", sc.err)
			}

			if err := writeOutput(cmd, planFile, []byte(plan.Markdown())); err != nil {
				_ = process.Abort(cmd.Context())
				return err
			}
			if draftFile != "" {
				if err := descriptor.WriteFile(draftFile, plan.Draft(descriptor.Assembly{Name: args[0]})); err != nil {
					_ = process.Abort(cmd.Context())
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Draft descriptor written to %s\n", draftFile)
			}

			if commitFile == "" {
				return process.Abort(cmd.Context())
			}
			d, err := descriptor.ReadFile(commitFile)
			if err != nil {
				_ = process.Abort(cmd.Context())
				return err
			}
			result, err := process.Complete(cmd.Context(), d)
			if err != nil {
				_ = process.Abort(cmd.Context())
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Descriptor for %s written to %s\n", result.Descriptor.ModuleID, corpus.Dir())
			if result.Diff != nil && !result.Diff.Empty() {
				fmt.Fprint(cmd.OutOrStdout(), result.Diff.Markdown())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&purpose, "purpose", "p", "", "What the new module does")
	cmd.Flags().StringSliceVarP(&keywords, "keyword", "k", nil, "Extra keywords used to find relevant artifacts")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Confirm the relevance of every artifact interactively")
	cmd.Flags().StringVarP(&planFile, "output", "o", "", "Write the plan to this file (default: stdout)")
	cmd.Flags().StringVar(&draftFile, "draft", "", "Write a draft descriptor derived from the plan")
	cmd.Flags().StringVar(&commitFile, "commit", "", "Complete discovery with this descriptor file")

	return cmd
}

// writeOutput writes data to path, or to the command's stdout when path is
// empty.
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
