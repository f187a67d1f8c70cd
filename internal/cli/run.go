package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/jobtrail/internal/enrich"
	"github.com/roach88/jobtrail/internal/llm"
	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/notion"
	"github.com/roach88/jobtrail/internal/pipeline"
	"github.com/roach88/jobtrail/internal/publish"
	"github.com/roach88/jobtrail/internal/schema"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ForceRefresh bool
	DryRun       bool

	// RunIDs, Clock, Enricher and Store override the defaults (for testing).
	// Nil uses UUIDv7 run ids, the system clock, the configured model
	// endpoint and the configured Notion database.
	RunIDs   pipeline.RunIDGenerator
	Clock    model.Clock
	Enricher enrich.Enricher
	Store    publish.Store
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}
	return newRunCommand(opts)
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Merge the master, enrich new rows and publish them",
		Long: `Run the full pipeline once.

Step 1 merges the master document into the local working copy. Rows already
in the local copy keep their enrichment and status; new master rows are added
as NEW. Step 2 enriches NEW rows with the language model, step 3 creates or
updates one Notion page per enriched row. The local copy is written after each
step. When nothing changed, or nothing is pending, the run stops after step 1.

Example:
  jobtrail run
  jobtrail run --force-refresh
  jobtrail run --dry-run --config ./jobtrail.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.ForceRefresh, "force-refresh", false, "refresh intrinsic fields of kept rows from the master")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "merge and report without writing or calling any service")

	return cmd
}

func runPipeline(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.DryRun || opts.Enricher != nil {
		err = cfg.ValidateLocal()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	logger := newLogger(opts.RootOptions, cfg, cmd.ErrOrStderr())
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Warn("received signal, stopping after the current row", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	s, err := schema.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load enrichment schema", err)
	}
	master, err := masterSource(ctx, cfg)
	if err != nil {
		return err
	}
	local, err := localStore(cfg)
	if err != nil {
		return err
	}
	if !opts.DryRun {
		if err := os.MkdirAll(cfg.LocalDir, 0o755); err != nil {
			return WrapExitError(ExitCommandError, "failed to create local directory", err)
		}
	}

	enricher := opts.Enricher
	if enricher == nil {
		enricher = llm.NewClient(llm.Config{
			Endpoint: cfg.LLM.Endpoint,
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey,
			Timeout:  cfg.LLM.Timeout,
		})
	}
	store := opts.Store
	if store == nil && cfg.PublishEnabled() {
		store = notion.NewClient(notion.Config{
			BaseURL:    cfg.Notion.BaseURL,
			Token:      cfg.Notion.Token,
			DatabaseID: cfg.Notion.DatabaseID,
			Timeout:    cfg.Notion.Timeout,
		})
	}

	// Markers go to stderr in JSON mode to keep stdout parseable.
	var markerOut io.Writer = formatter.Writer
	if opts.Format == "json" {
		markerOut = formatter.GetErrWriter()
	}

	popts := []pipeline.Option{
		pipeline.WithNames(cfg.Master, local.Path()),
		pipeline.WithOutput(markerOut),
		pipeline.WithMarker(newMarker(markerOut)),
		pipeline.WithLogger(logger),
	}
	if opts.RunIDs != nil {
		popts = append(popts, pipeline.WithRunIDs(opts.RunIDs))
	}
	if opts.Clock != nil {
		popts = append(popts, pipeline.WithClock(opts.Clock))
	}
	if !opts.DryRun {
		j, err := openJournal(cfg, false)
		if err != nil {
			return err
		}
		if j != nil {
			defer func() {
				if closeErr := j.Close(); closeErr != nil {
					logger.Error("error closing journal", "error", closeErr)
				}
			}()
			popts = append(popts, pipeline.WithJournal(j))
		}
	}

	p := pipeline.New(master, local, s, enricher, store, popts...)
	rep, runErr := p.Run(ctx, pipeline.Options{ForceRefresh: opts.ForceRefresh, DryRun: opts.DryRun})

	if opts.Format != "json" {
		io.WriteString(formatter.Writer, "\n")
	}
	if err := formatter.RunSuccess(rep.RunID, rep); err != nil {
		return err
	}

	switch {
	case runErr == nil:
		return nil
	case pipeline.IsIntegrityError(runErr):
		return WrapExitError(ExitCommandError, "run aborted", runErr)
	case errors.Is(runErr, context.Canceled):
		return WrapExitError(ExitFailure, "run interrupted", runErr)
	default:
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
}
