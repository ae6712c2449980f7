package commands

import (
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/spherical/office-raster/cmd/office-raster/ui"
	"github.com/spherical/office-raster/internal/config"
	"github.com/spherical/office-raster/internal/domain"
	"github.com/spherical/office-raster/internal/exec"
	"github.com/spherical/office-raster/internal/observability"
)

var (
	cfgFile   string
	verbose   bool
	noColor   bool
	logFormat string

	appConfig *config.Config
	logger    = observability.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "office-raster",
	Short: "Office Raster - convert Word documents and slide decks to images",
	Long: `Office Raster drives Microsoft Word or Keynote to export a document,
then rasterizes the export with sips, Quick Look or MuPDF. A document becomes
one image; a slide deck becomes slide_1..slide_N.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.InitUI(noColor, verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return errors.Wrap(err, "load configuration")
		}
		if logFormat != "" {
			if logFormat != "console" && logFormat != "json" {
				return errors.Errorf("unsupported log format %q (want console or json)", logFormat)
			}
			cfg.Observability.LogFormat = logFormat
		}
		appConfig = cfg

		logger = newLogger(cfg, verbose, cmd.ErrOrStderr())
		exec.SetLogger(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")
}

// newLogger builds the CLI logger. Console logs share stderr with the
// spinner, so below warn they are only shown with --verbose.
func newLogger(cfg *config.Config, verbose bool, out io.Writer) *observability.Logger {
	level := cfg.Observability.LogLevel
	switch {
	case verbose:
		level = "debug"
	case cfg.Observability.LogFormat == "console" && observability.ParseLevel(level) < zerolog.WarnLevel:
		level = "warn"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      cfg.Observability.LogFormat,
		Output:      out,
		ServiceName: "office-raster",
	})
}

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// ExitCode maps a command error to a process exit code: 0 for nil, the
// per-kind code for conversion failures and 1 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if kind := domain.KindOf(err); kind != "" {
		return domain.ExitCode(kind)
	}
	return 1
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) {
			ui.Error("%v", err)
		}
	}
	return ExitCode(err)
}
