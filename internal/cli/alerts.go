package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/payconfirm/internal/confirm"
	"github.com/roach88/payconfirm/internal/store"
)

// AlertsOptions holds flags for the alerts command.
type AlertsOptions struct {
	*RootOptions
	Database string
}

// NewAlertsCommand creates the alerts command.
func NewAlertsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AlertsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List escalated identifiers",
		Long: `List the alert ledger: one row per identifier that has raised a
PAYMENT_TIMEOUT alert, oldest first.

Example:
  payconfirm alerts --db ./payconfirm.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlerts(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runAlerts(opts *AlertsOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	alerts, err := st.ListAlerts(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list alerts", err)
	}
	if alerts == nil {
		alerts = []confirm.Alert{}
	}

	return opts.formatter(cmd).Success(alerts, func(w io.Writer) {
		if len(alerts) == 0 {
			fmt.Fprintln(w, "No alerts recorded.")
			return
		}
		for _, a := range alerts {
			fmt.Fprintf(w, "%s  %-24s %s severity=%s elapsed=%s env=%s\n",
				a.CreatedAt.Format(time.RFC3339),
				a.Identifier,
				a.Type,
				a.Severity,
				time.Duration(a.ElapsedMs)*time.Millisecond,
				a.Environment,
			)
		}
	})
}
