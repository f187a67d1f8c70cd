package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/jobtrail/internal/schema"
)

// Problem codes reported by validate.
const (
	ErrCodeConfig      = "E101"
	ErrCodeMaster      = "E102"
	ErrCodeCredentials = "E103"
	ErrCodeSchema      = "E104"
)

// Problem is one finding of validate.
type Problem struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool      `json:"valid"`
	Problems []Problem `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config without running the pipeline",
		Long: `Check the configuration a run would use.

Reports missing keys, an unreadable master workbook or credentials file and
an invalid enrichment schema. No service is called and nothing is written.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	var problems []Problem
	add := func(field, code string, err error) {
		problems = append(problems, Problem{Field: field, Code: code, Message: err.Error()})
	}

	for _, err := range unjoin(cfg.Validate()) {
		add("config", ErrCodeConfig, err)
	}

	if loc, err := cfg.MasterLocation(); err == nil {
		if loc.IsSheet() {
			formatter.VerboseLog("Master is sheet %q of spreadsheet %s", loc.Sheet, loc.SpreadsheetID)
			if cfg.Credentials != "" {
				if _, err := os.Stat(cfg.Credentials); err != nil {
					add("credentials", ErrCodeCredentials, err)
				}
			}
		} else {
			formatter.VerboseLog("Master is workbook %s", loc.Path)
			if _, err := os.Stat(loc.Path); err != nil {
				add("master", ErrCodeMaster, err)
			}
		}
	}

	s, err := schema.Load()
	if err != nil {
		add("schema", ErrCodeSchema, err)
	} else {
		formatter.VerboseLog("Enrichment schema has %d field(s)", len(s.Fields()))
	}

	if len(problems) > 0 {
		return outputValidationProblems(formatter, problems)
	}
	return outputValidateSuccess(formatter)
}

// unjoin splits an errors.Join result into its parts.
func unjoin(err error) []error {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return []error{err}
	}
	var out []error
	for _, e := range joined.Unwrap() {
		out = append(out, unjoin(e)...)
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}

	fmt.Fprintln(formatter.Writer, "✓ Config valid")
	return nil
}

// outputValidationProblems outputs every problem found.
func outputValidationProblems(formatter *OutputFormatter, problems []Problem) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Problems: problems},
			Error: &CLIError{
				Code:    problems[0].Code,
				Message: problems[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d problem(s)", len(problems)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, p := range problems {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", p.Code, p.Field, strings.TrimSpace(p.Message))
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d problem(s)", len(problems)))
}
