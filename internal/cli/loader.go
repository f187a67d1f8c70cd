package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/jobtrail/internal/config"
	"github.com/roach88/jobtrail/internal/document"
	"github.com/roach88/jobtrail/internal/journal"
	"github.com/roach88/jobtrail/internal/logging"
)

// loadConfig loads the dotenv file and the config.
func loadConfig(opts *RootOptions) (config.Config, error) {
	if opts.EnvFile != "" {
		if err := config.LoadDotEnv(opts.EnvFile); err != nil {
			return config.Config{}, WrapExitError(ExitCommandError, "failed to load env file", err)
		}
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger builds the command logger on w. --verbose forces debug.
func newLogger(opts *RootOptions, cfg config.Config, w io.Writer) *slog.Logger {
	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	return logging.New(w, level)
}

// localStore opens the local working copy for cfg.
func localStore(cfg config.Config) (*document.Workbook, error) {
	if err := cfg.ValidateLocal(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	path, err := cfg.LocalPath()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid master location", err)
	}
	return document.NewWorkbook(path, ""), nil
}

// masterSource opens the master document for cfg.
func masterSource(ctx context.Context, cfg config.Config) (document.Source, error) {
	loc, err := cfg.MasterLocation()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid master location", err)
	}
	if !loc.IsSheet() {
		return document.NewWorkbook(loc.Path, cfg.Sheet), nil
	}
	src, err := document.OpenSource(ctx, loc, cfg.Credentials)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open master", err)
	}
	return src, nil
}

// openJournal opens the run journal, creating its directory. It returns nil
// when the journal is disabled.
func openJournal(cfg config.Config, mustExist bool) (*journal.Journal, error) {
	if !cfg.JournalEnabled() {
		if mustExist {
			return nil, NewExitError(ExitCommandError, "journal is disabled")
		}
		return nil, nil
	}
	if mustExist {
		if _, err := os.Stat(cfg.Journal); err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("journal not found at %s", cfg.Journal), err)
		}
	} else if err := os.MkdirAll(filepath.Dir(cfg.Journal), 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create journal directory", err)
	}
	j, err := journal.Open(cfg.Journal)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}
