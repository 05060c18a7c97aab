package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessellated/drover/internal/audit"
)

// NewAuditCommand creates the audit command group.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the hash-chained audit log",
	}
	cmd.AddCommand(newAuditShowCommand(rootOpts))
	cmd.AddCommand(newAuditVerifyCommand(rootOpts))
	return cmd
}

func newAuditShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print every audit entry in chain order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, _, err := newOrchestrator(rootOpts)
			if err != nil {
				return err
			}
			entries, err := audit.Read(o.AuditPath())
			if err != nil {
				return WrapExitError(ExitFailure, "audit log unreadable", err)
			}
			if rootOpts.Format == "json" {
				return formatter(rootOpts, cmd).Success(entries)
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %-7s  %s  %s\n", e.FinishedAt, e.Status, e.JobID, e.Label)
				for _, msg := range e.Errors {
					fmt.Fprintf(out, "  error: %s\n", msg)
				}
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "audit log is empty")
			}
			return nil
		},
	}
}

func newAuditVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "verify",
		Short:         "Recompute the hash chain and report tampering",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, _, err := newOrchestrator(rootOpts)
			if err != nil {
				return err
			}
			if err := audit.Verify(o.AuditPath()); err != nil {
				formatter(rootOpts, cmd).Error("audit_chain_broken", err.Error(), nil)
				return WrapExitError(ExitFailure, "audit chain verification failed", err)
			}
			return formatter(rootOpts, cmd).Success("audit chain verified")
		},
	}
}
