package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/jobtrail/internal/document"
	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/pipeline"
	"github.com/roach88/jobtrail/internal/schema"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	From string
}

// ResetResult is the outcome of a reset.
type ResetResult struct {
	Local string `json:"local"`
	From  string `json:"from"`
	Reset int    `json:"reset"`
}

func (r ResetResult) Text() string {
	return fmt.Sprintf("Reset %d %s row(s) to NEW in %s\n", r.Reset, r.From, r.Local)
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset [key-prefix...]",
		Short: "Move rows back to NEW so the next run retries them",
		Long: `Reset rows of the local working copy to NEW.

By default every ERROR row is reset. Pass identity key prefixes (as shown by
"jobtrail status") to reset only some rows, and --from DONE to re-enrich rows
that already succeeded. Enrichment fields and the Notion page id are kept, so
a re-published row updates its existing page.

Example:
  jobtrail reset
  jobtrail reset 3f9a1c 77b2
  jobtrail reset --from DONE`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", string(model.StatusError), "status to reset (ERROR|DONE|PENDING)")

	return cmd
}

func runReset(opts *ResetOptions, prefixes []string, cmd *cobra.Command) error {
	from := model.ParseStatus(opts.From)
	switch from {
	case model.StatusError, model.StatusDone, model.StatusPending:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("cannot reset from %q: must be ERROR, DONE or PENDING", opts.From))
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	local, err := localStore(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	fields := schema.MustLoad().FieldNames()
	snap, err := pipeline.ReadLocal(ctx, local, fields)
	if errors.Is(err, document.ErrNotFound) {
		return WrapExitError(ExitCommandError, "no local copy yet, run \"jobtrail run\" first", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read local copy", err)
	}

	var n int
	snap.Rows, n = pipeline.Reset(snap.Rows, from, prefixes)
	if n > 0 {
		if err := pipeline.WriteLocal(ctx, local, snap, fields); err != nil {
			return WrapExitError(ExitCommandError, "failed to write local copy", err)
		}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(ResetResult{Local: local.Path(), From: string(from), Reset: n})
}
