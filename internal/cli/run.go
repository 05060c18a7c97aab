package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessellated/drover/internal/jobstore"
	"github.com/tessellated/drover/internal/orch"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Label string
	Wait  bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <batches.json>",
		Short: "Execute a submission as an asynchronous job",
		Long: `Execute a submission. The submission is classified first, a job is
created, and the mutating work runs in the background; the job id is
printed immediately and can be polled with "drover jobs get".

With --wait the command blocks until the job finishes and exits non-zero
if it failed. A submission whose idempotency keys are already bound
returns the existing job instead of running again.

Example:
  drover run ./batches.json --label "nightly tidy"
  drover run ./batches.json --wait`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Label, "label", "", "operator-facing label recorded on the job")
	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "block until the job finishes")

	return cmd
}

func runExecute(opts *RunOptions, path string, cmd *cobra.Command) error {
	sub, err := readSubmission(path)
	if err != nil {
		return err
	}
	label := opts.Label
	if label == "" {
		label = sub.Label
	}

	o, _, err := newOrchestrator(opts.RootOptions)
	if err != nil {
		return err
	}

	res, err := o.Execute(sub.Batches, label)
	if err != nil {
		formatter(opts.RootOptions, cmd).Error(string(orch.ValidationCodeOf(err)), err.Error(), nil)
		return WrapExitError(ExitCommandError, "submission rejected", err)
	}

	f := formatter(opts.RootOptions, cmd)
	if !opts.Wait {
		if opts.Format == "json" {
			return f.Success(res)
		}
		if res.Duplicate {
			fmt.Fprintf(cmd.OutOrStdout(), "duplicate submission, existing job %s\n", res.JobID)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "job %s accepted\n", res.JobID)
		}
		return nil
	}

	o.Wait()
	job, ok := o.GetJob(res.JobID)
	if !ok {
		return NewExitError(ExitCommandError, "job vanished: "+res.JobID)
	}
	if opts.Format == "json" {
		if err := f.Success(job); err != nil {
			return err
		}
	} else {
		printJobText(cmd, job)
	}
	if job.Status == jobstore.StatusFailed {
		return NewExitError(ExitFailure, "job failed: "+res.JobID)
	}
	return nil
}
