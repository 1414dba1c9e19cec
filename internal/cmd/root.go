// Package cmd implements the storagekit command line.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/storagekit/internal/config"
	"github.com/3leaps/storagekit/internal/observability"
	"github.com/3leaps/storagekit/pkg/storage"
)

// Process exit codes. Codes without a foundry equivalent use 1.
var (
	exitSuccess                    = 0
	exitFailure                    = 1
	exitInvalidArgument            = int(foundry.ExitInvalidArgument)
	exitFileNotFound               = int(foundry.ExitFileNotFound)
	exitFileReadError              = int(foundry.ExitFileReadError)
	exitFileWriteError             = int(foundry.ExitFileWriteError)
	exitExternalServiceUnavailable = int(foundry.ExitExternalServiceUnavailable)
	exitSignalInt                  = int(foundry.ExitSignalInt)
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "none",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile        string
	flagProvider   string
	flagRepository string
	flagLogLevel   string
	flagLogFormat  string
	flagMetrics    string
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "One object storage interface for S3, Azure Blob, GCS and local directories",
	Long: `storagekit reads, writes, copies and syncs objects through a single
interface, whichever provider holds them. JSON, CSV and Parquet objects are
decoded into records or tables; everything else is handled as bytes.

Configuration is read from ~/.config/storagekit/config.yaml (or --config),
then STORAGEKIT_* environment variables, then flags.

Examples:
  storagekit repo ls --provider s3
  storagekit ls data/ --repository lab-xpto
  storagekit cat data/orders.csv --shape records
  storagekit sync folder_a/ archive/ --include '**/*.csv'`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default ~/.config/storagekit/config.yaml)")
	pf.StringVarP(&flagProvider, "provider", "p", "", "Provider (s3|azure|gcs|file)")
	pf.StringVarP(&flagRepository, "repository", "r", "", "Active repository (bucket or container)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format (console|json)")
	pf.StringVar(&flagMetrics, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return exitError(exitInvalidArgument, "Invalid flags", err)
	})
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return exitSuccess
	}

	code := exitCodeOf(err)
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		code = exitSignalInt
	}
	observability.CLILogger.Error("Command failed", zap.Error(err), zap.Int("exit_code", code))
	return code
}

// initConfig loads configuration with changed flags as overrides and
// installs the configured logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	overrides := map[string]any{}
	flags := cmd.Flags()
	set := func(flag, key string, val any) {
		if flags.Changed(flag) {
			overrides[key] = val
		}
	}
	set("provider", "provider", flagProvider)
	set("repository", "repository", flagRepository)
	set("log-level", "logging.level", flagLogLevel)
	set("log-format", "logging.format", flagLogFormat)
	set("metrics-file", "metrics.textfile", flagMetrics)

	cfg, err := config.Load(cmd.Context(), cfgFile, overrides)
	if err != nil {
		return exitError(exitInvalidArgument, "Invalid configuration", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := observability.NewLogger(observability.LoggerConfig{
		Level:   level,
		Format:  cfg.Logging.Format,
		Output:  cmd.ErrOrStderr(),
		Service: config.AppName,
	})
	if err != nil {
		return exitError(exitInvalidArgument, "Invalid logging configuration", err)
	}
	observability.SetCLILogger(logger)
	return nil
}

// ExitError carries the exit code a failed command should produce.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// exitCodeOf returns the code carried by err, or the code for its kind.
func exitCodeOf(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	if err == nil {
		return exitSuccess
	}
	return exitCodeForKind(storage.KindOf(err))
}

func exitCodeForKind(kind storage.ErrorKind) int {
	switch kind {
	case "":
		return exitSuccess
	case storage.KindRepositoryNotSet, storage.KindExtensionMismatch, storage.KindUnsupportedShape,
		storage.KindUnsupportedProvider, storage.KindPreconditionFailed, storage.KindEncodeError:
		return exitInvalidArgument
	case storage.KindObjectNotFound, storage.KindRepositoryNotFound:
		return exitFileNotFound
	case storage.KindRepositoryAlreadyExists:
		return exitFileWriteError
	case storage.KindDecodeError:
		return exitFileReadError
	case storage.KindCredentialsInvalid, storage.KindTransportFailure:
		return exitExternalServiceUnavailable
	}
	return exitFailure
}

// fail wraps err with the exit code for its kind.
func fail(message string, err error) error {
	return exitError(exitCodeForKind(storage.KindOf(err)), message, err)
}

// argsBetween wraps cobra.RangeArgs so argument errors exit as invalid
// arguments.
func argsBetween(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(min, max)(cmd, args); err != nil {
			return exitError(exitInvalidArgument, "Invalid arguments", err)
		}
		return nil
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return argsBetween(n, n)
}
