package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessellated/drover/internal/orch"
)

// Submission is the on-disk shape of a batch file: the batches to run plus
// an optional operator-facing label.
type Submission struct {
	Batches []orch.Batch `json:"batches"`
	Label   string       `json:"label,omitempty"`
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <batches.json>",
		Short: "Classify a submission without touching disk",
		Long: `Classify every item of a submission as OK, DENY, or ERROR without
mutating anything. The same classification runs again at execute time,
so preview output is the plan an execute would follow.

Example:
  drover preview ./batches.json
  drover preview ./batches.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runPreview(opts *RootOptions, path string, cmd *cobra.Command) error {
	sub, err := readSubmission(path)
	if err != nil {
		return err
	}
	o, _, err := newOrchestrator(opts)
	if err != nil {
		return err
	}

	res, err := o.Preview(sub.Batches)
	if err != nil {
		formatter(opts, cmd).Error(string(orch.ValidationCodeOf(err)), err.Error(), nil)
		return WrapExitError(ExitCommandError, "preview rejected", err)
	}

	f := formatter(opts, cmd)
	if opts.Format == "json" {
		return f.Success(res)
	}
	printPreviewText(cmd, res)
	if res.Summary.Error > 0 || res.Summary.Deny > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d denied, %d errored of %d items",
			res.Summary.Deny, res.Summary.Error, res.Summary.Total))
	}
	return nil
}

func printPreviewText(cmd *cobra.Command, res *orch.PreviewResult) {
	out := cmd.OutOrStdout()
	for i, batch := range res.Batches {
		fmt.Fprintf(out, "batch %d  %s\n", i, batch.Op)
		for _, item := range batch.Results {
			switch item.Status {
			case orch.StatusOK:
				fmt.Fprintf(out, "  OK     -> %s\n", item.ResolvedPath)
			default:
				fmt.Fprintf(out, "  %-6s %s\n", item.Status, item.Reason)
			}
			for _, w := range item.Warnings {
				fmt.Fprintf(out, "         warning: %s\n", w)
			}
		}
	}
	fmt.Fprintf(out, "total %d: %d ok, %d deny, %d error\n",
		res.Summary.Total, res.Summary.OK, res.Summary.Deny, res.Summary.Error)
}

// readSubmission reads a batch file. Both a {"batches": [...]} document and
// a bare top-level array are accepted.
func readSubmission(path string) (*Submission, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read batches file", err)
	}
	trimmed := bytes.TrimSpace(raw)
	var sub Submission
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &sub.Batches); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to parse batches file", err)
		}
	} else if err := json.Unmarshal(trimmed, &sub); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse batches file", err)
	}
	if len(sub.Batches) == 0 {
		return nil, NewExitError(ExitCommandError, "batches file contains no batches")
	}
	return &sub, nil
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
}
