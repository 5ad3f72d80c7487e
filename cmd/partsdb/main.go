// Command partsdb imports OpenDB PC-part records into the product store and
// serves the catalog API.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// Exit codes.
const (
	exitFailure     = 1
	exitSource      = 2 // OpenDB source unreachable
	exitUsage       = 3 // bad flags, config, or unsupported category
	exitInProgress  = 4
	exitInterrupted = 130
)

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		// cobra already printed the error
		os.Exit(exitFailure)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "partsdb",
		Short:         "Import OpenDB PC-part records into the local product store",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to a config file (default: ./config.{toml,yaml})")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override the configured log level: debug, info, warn, or error")

	root.AddCommand(
		newImportCmd(&flags),
		newMigrateCmd(&flags),
		newServeCmd(&flags),
		newCategoriesCmd(&flags),
	)
	return root
}
