package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/payconfirm/internal/confirm"
	"github.com/roach88/payconfirm/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database   string
	Identifier string
	Kind       string
	Limit      int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List reconciliation outcomes",
		Long: `List recorded terminal transitions (success, timeout, closed) in the
order they happened.

Examples:
  payconfirm history --db ./payconfirm.db
  payconfirm history --db ./payconfirm.db --identifier si_123
  payconfirm history --db ./payconfirm.db --kind timeout --limit 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Identifier, "identifier", "", "only this identifier")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only this outcome (success|timeout|closed)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows (0 = all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	kind := confirm.OutcomeKind(opts.Kind)
	switch kind {
	case "", confirm.OutcomeSuccess, confirm.OutcomeTimeout, confirm.OutcomeClosed:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid kind %q: must be success, timeout or closed", opts.Kind))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	outcomes, err := st.ReadOutcomes(cmd.Context(), store.OutcomeFilter{
		Identifier: opts.Identifier,
		Kind:       kind,
		Limit:      opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}
	if outcomes == nil {
		outcomes = []confirm.Outcome{}
	}

	return opts.formatter(cmd).Success(outcomes, func(w io.Writer) {
		if len(outcomes) == 0 {
			fmt.Fprintln(w, "No outcomes recorded.")
			return
		}
		for _, o := range outcomes {
			fmt.Fprintf(w, "%s  %-24s %-8s attempt=%d elapsed=%s",
				o.RecordedAt.Format(time.RFC3339),
				o.Identifier,
				o.Kind,
				o.Attempt,
				time.Duration(o.ElapsedMs)*time.Millisecond,
			)
			if o.Target != "" {
				fmt.Fprintf(w, " target=%s", o.Target)
			}
			fmt.Fprintln(w)
		}
	})
}
