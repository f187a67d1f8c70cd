package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/jobtrail/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
	RunID string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the journal",
		Long: `List recent runs recorded in the run journal, newest first, with their
audit triple, gate decision and per-stage counts.

With --run, list the row outcomes of one run instead.

Example:
  jobtrail history
  jobtrail history --limit 5 --format json
  jobtrail history --run 0192f7c4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "number of runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the row outcomes of this run")

	return cmd
}

type runList []journal.Run

func (l runList) Text() string {
	if len(l) == 0 {
		return "No runs recorded.\n"
	}
	var b strings.Builder
	for _, r := range l {
		fmt.Fprintf(&b, "%s  %s  added=%d kept=%d pending=%d  %s",
			r.StartedUTC, r.ID, r.Stats.Added, r.Stats.Kept, r.Stats.Pending, orDash(r.Decision))
		if r.Decision == "proceed" {
			fmt.Fprintf(&b, "  enrich %d/%d  publish %d/%d",
				r.Enriched.Done, r.Enriched.Done+r.Enriched.Errors,
				r.Published.Done, r.Published.Done+r.Published.Errors)
		}
		if r.ForceRefresh {
			b.WriteString("  force-refresh")
		}
		if r.Error != "" {
			fmt.Fprintf(&b, "  error: %s", r.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

type outcomeList []journal.OutcomeRecord

func (l outcomeList) Text() string {
	if len(l) == 0 {
		return "No row outcomes recorded.\n"
	}
	var b strings.Builder
	for _, o := range l {
		key := o.IdentityKey
		if len(key) > 12 {
			key = key[:12]
		}
		fmt.Fprintf(&b, "%-8s #%-4d %s  %-5s", o.Stage, o.RowIndex, key, o.Status)
		if o.RecordID != "" {
			verb := "updated"
			if o.Created {
				verb = "created"
			}
			fmt.Fprintf(&b, "  %s %s", verb, o.RecordID)
		}
		if o.ErrorMsg != "" {
			fmt.Fprintf(&b, "  %s: %s", o.ErrorKind, o.ErrorMsg)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	j, err := openJournal(cfg, true)
	if err != nil {
		return err
	}
	defer j.Close()

	ctx := cmd.Context()
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	if opts.RunID != "" {
		if _, err := j.GetRun(ctx, opts.RunID); err != nil {
			return WrapExitError(ExitCommandError, "unknown run", err)
		}
		outcomes, err := j.Outcomes(ctx, opts.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read outcomes", err)
		}
		return formatter.Success(outcomeList(outcomes))
	}

	runs, err := j.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}
	return formatter.Success(runList(runs))
}
