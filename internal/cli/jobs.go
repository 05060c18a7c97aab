package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessellated/drover/internal/jobstore"
	"github.com/tessellated/drover/internal/journal"
)

// NewJobsCommand creates the jobs command group.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect persisted jobs",
	}
	cmd.AddCommand(newJobsListCommand(rootOpts))
	cmd.AddCommand(newJobsGetCommand(rootOpts))
	return cmd
}

func newJobsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List jobs, most recently started first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, _, err := newOrchestrator(rootOpts)
			if err != nil {
				return err
			}
			jobs := o.ListJobs()
			if rootOpts.Format == "json" {
				return formatter(rootOpts, cmd).Success(jobs)
			}
			out := cmd.OutOrStdout()
			for _, j := range jobs {
				fmt.Fprintf(out, "%s  %-7s  %d/%d  %s  %s\n",
					j.ID, j.Status, j.Progress.Done, j.Progress.Total,
					j.StartedAt.Format(time.RFC3339), j.Label)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(out, "no jobs")
			}
			return nil
		},
	}
}

func newJobsGetCommand(rootOpts *RootOptions) *cobra.Command {
	var showJournal bool

	cmd := &cobra.Command{
		Use:           "get <job-id>",
		Short:         "Show one job's record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, _, err := newOrchestrator(rootOpts)
			if err != nil {
				return err
			}
			job, ok := o.GetJob(args[0])
			if !ok {
				return NewExitError(ExitCommandError, "no such job: "+args[0])
			}
			if rootOpts.Format == "json" {
				if err := formatter(rootOpts, cmd).Success(job); err != nil {
					return err
				}
			} else {
				printJobText(cmd, job)
			}
			if showJournal {
				return printJournal(cmd, rootOpts, job)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showJournal, "journal", false, "also print the job's step journal")
	return cmd
}

func printJobText(cmd *cobra.Command, j jobstore.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "job      %s\n", j.ID)
	fmt.Fprintf(out, "status   %s\n", j.Status)
	fmt.Fprintf(out, "progress %d/%d\n", j.Progress.Done, j.Progress.Total)
	if j.Label != "" {
		fmt.Fprintf(out, "label    %s\n", j.Label)
	}
	fmt.Fprintf(out, "started  %s\n", j.StartedAt.Format(time.RFC3339))
	if j.FinishedAt != nil {
		fmt.Fprintf(out, "finished %s\n", j.FinishedAt.Format(time.RFC3339))
	}
	for _, e := range j.Errors {
		fmt.Fprintf(out, "error    %s\n", e)
	}
	for _, step := range j.Rollback {
		switch step.Op {
		case "move":
			fmt.Fprintf(out, "rollback move %s -> %s\n", step.Src, step.Dest)
		case "remove":
			fmt.Fprintf(out, "rollback remove %s\n", step.Path)
		}
	}
}

func printJournal(cmd *cobra.Command, rootOpts *RootOptions, j jobstore.Job) error {
	entries, err := journal.Read(j.JournalPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	if rootOpts.Format == "json" {
		return formatter(rootOpts, cmd).Success(entries)
	}
	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %-8s", e.TS.Format(time.RFC3339), e.Type)
		switch e.Type {
		case journal.TypeStep:
			fmt.Fprintf(out, "  %s %s -> %s", e.Op, e.Src, e.Dest)
			if e.Note != "" {
				fmt.Fprintf(out, "  (%s)", e.Note)
			}
		case journal.TypeError:
			fmt.Fprintf(out, "  %s", e.Error)
		case journal.TypeFinalize:
			fmt.Fprintf(out, "  %s", e.Status)
		}
		fmt.Fprintln(out)
	}
	return nil
}
