package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pcparts/partsdb/importer"
	"github.com/spf13/cobra"
)

// importFlags holds the parsed flags for the import command.
type importFlags struct {
	source  string
	dir     string
	timeout time.Duration
	json    bool
}

func newImportCmd(global *globalFlags) *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "import <category>",
		Short: "Import every OpenDB record of a category",
		Long: "Fetches the category's records from OpenDB, maps them onto products and " +
			"upserts them. Records that cannot be mapped are skipped and listed in the summary.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cmd.OutOrStdout(), global, flags, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.source, "source", "", "Record source: archive or dir (default from config)")
	f.StringVar(&flags.dir, "dir", "", "Local open-db checkout; implies --source dir")
	f.DurationVar(&flags.timeout, "timeout", 0, "Per-attempt archive download timeout (default from config)")
	f.BoolVar(&flags.json, "json", false, "Print the summary as JSON")

	return cmd
}

func runImport(ctx context.Context, out io.Writer, global *globalFlags, flags importFlags, category string) error {
	e, err := setup(global)
	if err != nil {
		return err
	}
	defer e.close()

	switch {
	case flags.dir != "":
		e.cfg.OpenDB.Source = "dir"
		e.cfg.OpenDB.LocalPath = flags.dir
	case flags.source != "":
		e.cfg.OpenDB.Source = flags.source
	}
	if flags.timeout > 0 {
		e.cfg.OpenDB.Timeout = flags.timeout
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := e.telemetry(ctx)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	reg, err := e.registry()
	if err != nil {
		return err
	}
	if _, ok := reg.Lookup(category); !ok {
		return codeError(exitUsage, "unsupported category %q (supported: %v)", category, reg.Categories())
	}

	db, closeDB, err := e.database()
	if err != nil {
		return err
	}
	defer closeDB()

	imp, release, err := e.importer(ctx, db, reg)
	if err != nil {
		return err
	}
	defer release()

	summary, err := imp.Run(ctx, category)
	if err != nil {
		return importError(err)
	}

	if flags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(out, summary)
	return nil
}

// importError maps an import failure to its exit code. Cancellation wins over
// any error it caused further down.
func importError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return codeError(exitInterrupted, "import interrupted")
	case errors.Is(err, importer.ErrUnsupportedCategory):
		return codeError(exitUsage, "%s", err)
	case errors.Is(err, importer.ErrSourceUnavailable):
		return codeError(exitSource, "%s", err)
	case errors.Is(err, importer.ErrImportInProgress):
		return codeError(exitInProgress, "%s", err)
	}
	return err
}

func printSummary(out io.Writer, s *importer.Summary) {
	fmt.Fprintf(out, "Imported %s from %s in %s\n",
		s.Category, s.Source, s.CompletedAt.Sub(s.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(out, "  total:     %d\n", s.Total)
	fmt.Fprintf(out, "  created:   %d\n", s.Created)
	fmt.Fprintf(out, "  updated:   %d\n", s.Updated)
	fmt.Fprintf(out, "  unchanged: %d\n", s.Unchanged)
	fmt.Fprintf(out, "  skipped:   %d\n", s.Skipped)
	for _, e := range s.Errors {
		fmt.Fprintf(out, "    %s [%s]\n", e.Error(), e.Code)
	}
	fmt.Fprintf(out, "  run id:    %s\n", s.RunID)
}
