// Package cli wires the bakeflow commands: bake runs the full pipeline,
// export runs the geometry export alone, objects and savestates inspect
// and maintain the on-disk state.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // config file path
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the bakeflow CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bakeflow",
		Short: "Bakeflow - scene export and simulation bake pipeline",
		Long: "Bakeflow exports scene geometry into a cache, runs the fluid\n" +
			"simulation frame by frame, and persists resumable savestates.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "config file (YAML)")

	cmd.AddCommand(NewBakeCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewObjectsCommand(opts))
	cmd.AddCommand(NewSavestatesCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// newLogger builds the command logger: debug level under --verbose,
// writing to stderr so JSON output stays parseable.
func newLogger(opts *RootOptions, errOut io.Writer) *log.Logger {
	if errOut == nil {
		errOut = os.Stderr
	}
	logger := log.New(errOut)
	if opts.Verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// newFormatter builds the output formatter for one command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
