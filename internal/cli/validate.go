package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/billsync/internal/config"
)

// CatalogSummary describes a valid catalog.
type CatalogSummary struct {
	Valid        bool     `json:"valid"`
	OneTime      []string `json:"one_time"`
	Subscription []string `json:"subscription"`
	Consumable   string   `json:"consumable,omitempty"`
	Hidden       string   `json:"hidden,omitempty"`
	Workers      int      `json:"workers"`
}

// CatalogProblem is the JSON detail of an invalid catalog.
type CatalogProblem struct {
	Field string `json:"field"`
	Line  int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog.cue>",
		Short: "Validate a product catalog",
		Long: `Compile a CUE product catalog and check it.

Checks that product ids are unique across families, that the consumable
is a one-time product, that the hidden product is known, and that the
engine durations parse.

Exit codes:
  0 - Catalog is valid
  1 - Catalog is invalid
  2 - Command error (file not found, etc.)

Example:
  billsync validate ./catalog.cue
  billsync validate ./catalog.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	slog.Debug("loading catalog", "path", path)
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return out.Failure(ExitCommandError, ErrCodeNotFound,
				fmt.Sprintf("catalog not found: %s", path), nil, nil)
		}

		var cerr *config.CompileError
		if errors.As(err, &cerr) {
			problem := CatalogProblem{Field: cerr.Field}
			if cerr.Pos.IsValid() {
				problem.Line = cerr.Pos.Line()
			}
			return out.Failure(ExitFailure, ErrCodeCatalog, cerr.Message, CatalogSummary{Valid: false}, problem)
		}
		return out.Failure(ExitCommandError, ErrCodeGeneric, err.Error(), nil, nil)
	}

	summary := CatalogSummary{
		Valid:        true,
		OneTime:      cfg.OneTime,
		Subscription: cfg.Subscription,
		Consumable:   cfg.Consumable,
		Hidden:       cfg.Hidden,
		Workers:      cfg.Workers,
	}
	return out.Success(summary, formatCatalog(summary))
}

func formatCatalog(s CatalogSummary) string {
	var b strings.Builder
	b.WriteString("\u2713 Catalog valid\n")
	fmt.Fprintf(&b, "  one-time:     %s\n", listOrNone(s.OneTime))
	fmt.Fprintf(&b, "  subscription: %s\n", listOrNone(s.Subscription))
	if s.Consumable != "" {
		fmt.Fprintf(&b, "  consumable:   %s\n", s.Consumable)
	}
	if s.Hidden != "" {
		fmt.Fprintf(&b, "  hidden:       %s\n", s.Hidden)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func listOrNone(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}
