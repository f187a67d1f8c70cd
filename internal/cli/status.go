package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/jobtrail/internal/document"
	"github.com/roach88/jobtrail/internal/pipeline"
	"github.com/roach88/jobtrail/internal/schema"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Count local rows by status and list failed rows",
		Long: `Summarize the local working copy.

Rows are counted per llm_status. Rows in ERROR are listed with their
error_msg; reset them with "jobtrail reset" to retry them on the next run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

// statusView adds text rendering to a summary.
type statusView struct {
	pipeline.StatusSummary
	Local string `json:"local"`
	style func(string) string
}

func (v statusView) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Local copy: %s\n", v.Local)
	fmt.Fprintf(&b, "Rows: %d (published %d)\n", v.Total, v.Published)
	for _, name := range v.StatusNames() {
		fmt.Fprintf(&b, "  %s %d\n", v.style(name), v.ByStatus[name])
	}
	if len(v.Errors) > 0 {
		b.WriteString("\nFailed rows:\n")
		for _, e := range v.Errors {
			fmt.Fprintf(&b, "  #%d %s %q\n", e.Row, e.Key, e.Subject)
			fmt.Fprintf(&b, "     %s %s\n", e.ProcessedUTC, e.Message)
		}
	}
	return b.String()
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	local, err := localStore(cfg)
	if err != nil {
		return err
	}

	snap, err := pipeline.ReadLocal(cmd.Context(), local, schema.MustLoad().FieldNames())
	if errors.Is(err, document.ErrNotFound) {
		return WrapExitError(ExitCommandError, "no local copy yet, run \"jobtrail run\" first", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read local copy", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(statusView{
		StatusSummary: pipeline.Summarize(snap.Rows),
		Local:         local.Path(),
		style:         statusStyle(cmd.OutOrStdout()),
	})
}
