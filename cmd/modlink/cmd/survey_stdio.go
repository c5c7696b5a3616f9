// survey_stdio.go - interactive relevance prompts for discovery
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modlink/discovery"
)

// promptStdio returns survey options bound to the command's streams. Streams
// that are not terminals fall back to the process stdio.
func promptStdio(cmd *cobra.Command) []survey.AskOpt {
	var (
		in     terminal.FileReader = os.Stdin
		out    terminal.FileWriter = os.Stdout
		errOut terminal.FileWriter = os.Stderr
	)
	if r, ok := cmd.InOrStdin().(terminal.FileReader); ok {
		in = r
	}
	if w, ok := cmd.OutOrStdout().(terminal.FileWriter); ok {
		out = w
	}
	if w, ok := cmd.ErrOrStderr().(terminal.FileWriter); ok {
		errOut = w
	}
	return []survey.AskOpt{survey.WithStdio(in, out, errOut)}
}

// surveyClassifier asks the designer about every corpus item, proposing the
// fallback classifier's answer as the default.
type surveyClassifier struct {
	opts     []survey.AskOpt
	fallback discovery.Classifier
	err      error
}

func (c *surveyClassifier) Classify(ctx context.Context, req discovery.Request, item discovery.Item) discovery.Decision {
	suggested := c.fallback.Classify(ctx, req, item)
	if c.err != nil {
		return suggested
	}

	relevant := suggested.Relevant
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Is %s %q of %s (%s) relevant to %s?", item.Kind, item.Name, item.Module, item.Type, req.ModuleID),
		Default: suggested.Relevant,
		Help:    item.Description,
	}
	if err := survey.AskOne(prompt, &relevant, c.opts...); err != nil {
		// stop prompting, keep the suggestions for the remaining items
		c.err = err
		return suggested
	}
	if relevant == suggested.Relevant {
		return suggested
	}
	reason := "selected interactively"
	if !relevant {
		reason = "rejected interactively"
	}
	return discovery.Decision{Relevant: relevant, Reason: reason}
}
