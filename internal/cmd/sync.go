package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/storagekit/internal/config"
	"github.com/3leaps/storagekit/internal/observability"
	"github.com/3leaps/storagekit/pkg/manifest"
	"github.com/3leaps/storagekit/pkg/match"
	"github.com/3leaps/storagekit/pkg/output"
	"github.com/3leaps/storagekit/pkg/transfer"
)

var syncCmd = &cobra.Command{
	Use:   "sync [<source-prefix> <target-prefix>]",
	Short: "Copy every object under a prefix to another prefix",
	Long: `Copy every object under a source prefix to a target prefix, in the same
or another repository. Failed items are reported and the rest continue.

By default targets keep only the file name (flatten); --path-mode preserve
keeps the path relative to the source prefix.

Sources and targets may instead come from a YAML or JSON manifest.

Examples:
  storagekit sync folder_a/ archive/ -r lab-xpto
  storagekit sync s3://raw/2024/ s3://curated/2024/ --path-mode preserve
  storagekit sync folder_a/ backup/ --include '**/*.csv' --min-size 1KB --dry-run
  storagekit sync --manifest nightly.yaml`,
	Args: argsBetween(0, 2),
	RunE: runSync,
}

var (
	syncManifest      string
	syncDryRun        bool
	syncNoOverwrite   bool
	syncPathMode      string
	syncPathTemplate  string
	syncRateLimit     float64
	syncIncludes      []string
	syncExcludes      []string
	syncIncludeHidden bool
	syncMinSize       string
	syncMaxSize       string
	syncAfter         string
	syncBefore        string
	syncKeyRegex      string
)

func init() {
	rootCmd.AddCommand(syncCmd)

	f := syncCmd.Flags()
	f.StringVarP(&syncManifest, "manifest", "m", "", "Sync manifest (YAML or JSON)")
	f.BoolVar(&syncDryRun, "dry-run", false, "Plan targets without copying")
	f.BoolVar(&syncNoOverwrite, "no-overwrite", false, "Fail items whose target exists")
	f.StringVar(&syncPathMode, "path-mode", "", "Target mapping (flatten|preserve)")
	f.StringVar(&syncPathTemplate, "path-template", "", "Custom target mapping, e.g. '{dir[0]}/{filename}'")
	f.Float64Var(&syncRateLimit, "rate-limit", 0, "Max copies per second (0=unlimited)")
	f.StringArrayVar(&syncIncludes, "include", nil, "Include glob pattern (repeatable)")
	f.StringArrayVar(&syncExcludes, "exclude", nil, "Exclude glob pattern (repeatable)")
	f.BoolVar(&syncIncludeHidden, "include-hidden", false, "Include dot-files and dot-directories")
	f.StringVar(&syncMinSize, "min-size", "", "Minimum object size (e.g. 1KB)")
	f.StringVar(&syncMaxSize, "max-size", "", "Maximum object size (e.g. 100MB)")
	f.StringVar(&syncAfter, "after", "", "Only objects modified at or after (YYYY-MM-DD or RFC3339)")
	f.StringVar(&syncBefore, "before", "", "Only objects modified before (YYYY-MM-DD or RFC3339)")
	f.StringVar(&syncKeyRegex, "key-regex", "", "Only keys matching this regular expression")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, srcArg, dstArg, err := syncManifestFor(cmd, args)
	if err != nil {
		return err
	}

	engine := m.EngineConfig(observability.CLILogger)
	s, err := openSession(ctx, cmd.OutOrStdout(), sessionOptions{provider: m.Provider, engine: &engine})
	if err != nil {
		return err
	}
	defer s.close()

	src, err := srcArg.resolve(s.provider(), s.store.Repository())
	if err != nil {
		return exitError(exitInvalidArgument, "Invalid source", err)
	}
	dst, err := dstArg.resolve(s.provider(), s.store.Repository())
	if err != nil {
		return exitError(exitInvalidArgument, "Invalid target", err)
	}

	observability.CLILogger.Info("Starting sync",
		zap.String("job_id", s.jobID),
		zap.String("source", src.String()),
		zap.String("target", dst.String()),
		zap.Bool("dry_run", m.Sync.DryRun))

	res, err := s.store.SyncBetweenRepositories(ctx, src.Repository, src.Path, dst.Repository, dst.Path, m.SyncOptions()...)
	if res != nil {
		s.metrics.RecordBatch(res)
		if werr := writeBatch(ctx, s.out, res, src.Repository, dst.Repository); werr != nil {
			return werr
		}
	}
	if err != nil {
		if transfer.IsPartialFailure(err) {
			return exitError(exitFailure, "Sync finished with failures", err)
		}
		return fail("Sync failed", err)
	}
	return nil
}

// syncManifestFor builds the manifest from --manifest or from positional
// arguments and flags, returning the unresolved source and target. Changed
// flags override manifest settings.
func syncManifestFor(cmd *cobra.Command, args []string) (m *manifest.Manifest, src, dst ObjectRef, err error) {
	invalid := func(msg string, err error) (*manifest.Manifest, ObjectRef, ObjectRef, error) {
		return nil, ObjectRef{}, ObjectRef{}, exitError(exitInvalidArgument, msg, err)
	}

	switch {
	case syncManifest != "" && len(args) > 0:
		return invalid("Invalid arguments", errors.New("use either --manifest or source and target arguments"))
	case syncManifest != "":
		m, err = manifest.Load(syncManifest)
		if err != nil {
			if errors.Is(err, manifest.ErrInvalidManifest) || errors.Is(err, manifest.ErrValidationFailed) {
				return invalid("Invalid manifest", err)
			}
			return nil, src, dst, exitError(exitFileReadError, "Failed to read manifest", err)
		}
		src = ObjectRef{Repository: m.Source.Repository, Path: m.Source.Prefix}
		dst = ObjectRef{Repository: m.Target.Repository, Path: m.Target.Prefix}
	case len(args) == 2:
		if src, err = ParseRef(args[0]); err != nil {
			return invalid("Invalid source", err)
		}
		if dst, err = ParseRef(args[1]); err != nil {
			return invalid("Invalid target", err)
		}
		m = &manifest.Manifest{
			Version: manifest.Version,
			Source:  manifest.Location{Repository: src.Repository, Prefix: src.Path},
			Target:  manifest.Location{Repository: dst.Repository, Prefix: dst.Path},
		}
		if cfg := config.GetConfig(); cfg != nil {
			m.Sync.PathMode = cfg.Sync.PathMode
			m.Sync.RateLimit = cfg.Sync.RateLimit
		}
	default:
		return invalid("Invalid arguments", errors.New("sync needs a source and a target prefix, or --manifest"))
	}

	flags := cmd.Flags()
	if flags.Changed("dry-run") {
		m.Sync.DryRun = syncDryRun
	}
	if flags.Changed("no-overwrite") {
		m.Sync.NoOverwrite = syncNoOverwrite
	}
	if flags.Changed("path-mode") {
		m.Sync.PathMode = syncPathMode
	}
	if flags.Changed("path-template") {
		m.Sync.PathTemplate = syncPathTemplate
	}
	if flags.Changed("rate-limit") {
		m.Sync.RateLimit = syncRateLimit
	}
	if flags.Changed("include") {
		m.Match.Includes = syncIncludes
	}
	if flags.Changed("exclude") {
		m.Match.Excludes = syncExcludes
	}
	if flags.Changed("include-hidden") {
		m.Match.IncludeHidden = syncIncludeHidden
	}
	m.Filter = mergeFilter(m.Filter, match.FilterConfig{
		MinSize:  syncMinSize,
		MaxSize:  syncMaxSize,
		After:    syncAfter,
		Before:   syncBefore,
		KeyRegex: syncKeyRegex,
	})

	m.ApplyDefaults()
	if err := m.Check(); err != nil {
		return invalid("Invalid sync options", err)
	}
	if m.Sync.RateLimit < 0 {
		return invalid("Invalid --rate-limit value", fmt.Errorf("rate limit must be >= 0"))
	}
	return m, src, dst, nil
}

func mergeFilter(base, flags match.FilterConfig) match.FilterConfig {
	pick := func(b, f string) string {
		if f != "" {
			return f
		}
		return b
	}
	return match.FilterConfig{
		MinSize:  pick(base.MinSize, flags.MinSize),
		MaxSize:  pick(base.MaxSize, flags.MaxSize),
		After:    pick(base.After, flags.After),
		Before:   pick(base.Before, flags.Before),
		KeyRegex: pick(base.KeyRegex, flags.KeyRegex),
	}
}

// writeBatch emits one transfer record per succeeded item, one error
// record per failed item, and a summary. Item keys are qualified with
// their repositories.
func writeBatch(ctx context.Context, w output.Writer, res *transfer.BatchResult, srcRepo, dstRepo string) error {
	for _, item := range res.Succeeded {
		if err := w.WriteTransfer(ctx, &output.TransferRecord{
			Op:     "sync",
			Source: srcRepo + "/" + item.Source,
			Target: dstRepo + "/" + item.Target,
			Size:   item.Size,
			DryRun: res.DryRun,
		}); err != nil {
			return err
		}
	}
	for _, item := range res.Failed {
		msg := ""
		if item.Err != nil {
			msg = item.Err.Error()
		}
		if err := w.WriteError(ctx, &output.ErrorRecord{
			Code:    item.Code,
			Message: msg,
			Path:    srcRepo + "/" + item.Source,
			Details: map[string]string{"target": dstRepo + "/" + item.Target},
		}); err != nil {
			return err
		}
	}
	return w.WriteSummary(ctx, &output.SummaryRecord{
		Op:            "sync",
		Succeeded:     int64(len(res.Succeeded)),
		Failed:        int64(len(res.Failed)),
		Bytes:         res.Bytes(),
		DryRun:        res.DryRun,
		Duration:      res.Duration,
		DurationHuman: formatDuration(res.Duration),
	})
}
