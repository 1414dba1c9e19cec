package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/storagekit/internal/observability"
	"github.com/3leaps/storagekit/pkg/codec"
	"github.com/3leaps/storagekit/pkg/output"
	"github.com/3leaps/storagekit/pkg/provider"
	"github.com/3leaps/storagekit/pkg/storage"
)

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List files and folders under a prefix",
	Long: `List the direct children of a prefix in the active repository.
Deeper keys are collapsed into folder entries ending in "/".

Examples:
  storagekit ls -r lab-xpto
  storagekit ls folder_a/ -r lab-xpto
  storagekit ls s3://lab-xpto/folder_a/`,
	Args: argsBetween(0, 1),
	RunE: runLs,
}

var catCmd = &cobra.Command{
	Use:   "cat <object>",
	Short: "Read and decode an object",
	Long: `Read an object and print it in the requested shape.

Shapes: table (tab-separated), records and mapping (JSON), text and bytes
(raw). Structured objects default to table, everything else to bytes.

Examples:
  storagekit cat folder_a/file001.csv
  storagekit cat data/orders.parquet --shape records
  storagekit cat config.json --shape mapping`,
	Args: exactArgs(1),
	RunE: runCat,
}

var putCmd = &cobra.Command{
	Use:   "put <object> [local-file|-]",
	Short: "Write an object from a local file or stdin",
	Long: `Write an object. Content is read from a local file, or stdin when the
file is "-" or omitted.

When the local file is structured (.json, .csv, .parquet) and its
extension differs from the object's, the content is converted.

Examples:
  storagekit put folder_a/file001.csv ./file001.csv
  storagekit put data/orders.parquet ./orders.csv
  echo '{"a":1}' | storagekit put config.json --if-absent`,
	Args: argsBetween(1, 2),
	RunE: runPut,
}

var rmCmd = &cobra.Command{
	Use:   "rm <object>",
	Short: "Delete an object",
	Args:  exactArgs(1),
	RunE:  runRm,
}

var statCmd = &cobra.Command{
	Use:   "stat <object>",
	Short: "Show object metadata",
	Args:  exactArgs(1),
	RunE:  runStat,
}

var urlCmd = &cobra.Command{
	Use:   "url <object>",
	Short: "Create a time-limited read URL",
	Long: `Create a signed URL granting read access to one object.

Examples:
  storagekit url data/report.csv
  storagekit url data/report.csv --ttl 15m`,
	Args: exactArgs(1),
	RunE: runURL,
}

var (
	catShape    string
	putIfAbsent bool
	putIfMatch  string
	putType     string
	urlTTL      time.Duration
)

func init() {
	rootCmd.AddCommand(lsCmd, catCmd, putCmd, rmCmd, statCmd, urlCmd)

	catCmd.Flags().StringVar(&catShape, "shape", "", "Output shape (table|records|mapping|text|bytes)")
	putCmd.Flags().BoolVar(&putIfAbsent, "if-absent", false, "Fail if the object already exists")
	putCmd.Flags().StringVar(&putIfMatch, "if-match", "", "Fail unless the object's version matches")
	putCmd.Flags().StringVar(&putType, "content-type", "", "Override the content type")
	urlCmd.Flags().DurationVar(&urlTTL, "ttl", 0, "URL validity (default from url_ttl)")
}

// objectCommand opens a session and runs fn with the reference's
// repository active.
func objectCommand(cmd *cobra.Command, arg string, fn func(ctx context.Context, s *session, r ObjectRef) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd.OutOrStdout(), sessionOptions{})
	if err != nil {
		return err
	}
	defer s.close()

	r, err := s.ref(arg)
	if err != nil {
		return err
	}
	return s.withRepository(ctx, r, func() error { return fn(ctx, s, r) })
}

func runLs(cmd *cobra.Command, args []string) error {
	arg := ""
	if len(args) == 1 {
		arg = args[0]
	}
	if arg == "" {
		ctx := cmd.Context()
		s, err := openSession(ctx, cmd.OutOrStdout(), sessionOptions{})
		if err != nil {
			return err
		}
		defer s.close()
		return listEntries(ctx, s, ObjectRef{Repository: s.store.Repository()})
	}
	return objectCommand(cmd, arg, listEntries)
}

func listEntries(ctx context.Context, s *session, r ObjectRef) error {
	start := time.Now()
	entries, err := s.store.List(ctx, r.Path)
	if err != nil {
		return fail("Failed to list objects", err)
	}
	for _, e := range entries {
		if err := s.out.WriteObject(ctx, &output.ObjectRecord{
			Repository: r.Repository,
			Path:       e.Path,
			Kind:       string(e.Kind),
		}); err != nil {
			return err
		}
	}
	dur := time.Since(start)
	return s.out.WriteSummary(ctx, &output.SummaryRecord{
		Op:            "ls",
		Succeeded:     int64(len(entries)),
		Duration:      dur,
		DurationHuman: formatDuration(dur),
	})
}

func runCat(cmd *cobra.Command, args []string) error {
	shape, err := parseShapeFlag(catShape)
	if err != nil {
		return err
	}
	return objectCommand(cmd, args[0], func(ctx context.Context, s *session, r ObjectRef) error {
		value, err := s.store.Read(ctx, r.Path, shape)
		if err != nil {
			return fail("Failed to read object", err)
		}
		return printValue(cmd.OutOrStdout(), value)
	})
}

func parseShapeFlag(name string) (codec.Shape, error) {
	if name == "" {
		return "", nil
	}
	shape, err := codec.ParseShape(name)
	if err != nil {
		return "", exitError(exitInvalidArgument, "Invalid --shape value", err)
	}
	return shape, nil
}

// printValue writes a decoded value: raw for bytes and text, tab-separated
// for tables, JSON otherwise.
func printValue(w io.Writer, value any) error {
	switch v := value.(type) {
	case []byte:
		_, err := w.Write(v)
		return err
	case string:
		_, err := io.WriteString(w, v)
		return err
	case *codec.Table:
		return printTable(w, v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func printTable(w io.Writer, t *codec.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, col := range t.Columns {
		if i > 0 {
			_, _ = fmt.Fprint(tw, "\t")
		}
		_, _ = fmt.Fprint(tw, col)
	}
	_, _ = fmt.Fprintln(tw)
	for _, row := range t.Rows {
		for j := range t.Columns {
			if j > 0 {
				_, _ = fmt.Fprint(tw, "\t")
			}
			if j < len(row) && row[j] != nil {
				_, _ = fmt.Fprint(tw, row[j])
			}
		}
		_, _ = fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func runPut(cmd *cobra.Command, args []string) error {
	if putIfAbsent && putIfMatch != "" {
		return exitError(exitInvalidArgument, "Conflicting flags", fmt.Errorf("--if-absent and --if-match are mutually exclusive"))
	}
	src := "-"
	if len(args) == 2 {
		src = args[1]
	}

	data, err := readLocal(cmd.InOrStdin(), src)
	if err != nil {
		return err
	}

	return objectCommand(cmd, args[0], func(ctx context.Context, s *session, r ObjectRef) error {
		content, err := convertLocal(data, src, r.Path)
		if err != nil {
			return err
		}

		var opts []storage.WriteOption
		switch {
		case putIfAbsent:
			opts = append(opts, storage.IfAbsent())
		case putIfMatch != "":
			opts = append(opts, storage.WithPrecondition(provider.Precondition{IfMatch: putIfMatch}))
		}
		if putType != "" {
			opts = append(opts, storage.WithContentType(putType))
		}

		if err := s.store.Put(ctx, r.Path, content, opts...); err != nil {
			return fail("Failed to write object", err)
		}
		observability.CLILogger.Info("Object written", zap.String("object", r.String()), zap.Int("bytes", len(data)))

		meta, err := s.store.GetMetadata(ctx, r.Path)
		if err != nil {
			return fail("Failed to stat written object", err)
		}
		return s.out.WriteObject(ctx, objectRecord(meta))
	})
}

func readLocal(stdin io.Reader, src string) ([]byte, error) {
	if src == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, exitError(exitFileReadError, "Failed to read stdin", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, exitError(exitFileNotFound, "Local file not found", err)
		}
		return nil, exitError(exitFileReadError, "Failed to read local file", err)
	}
	return data, nil
}

// convertLocal decodes a structured local file into a table when the
// object's structured extension differs, so Put re-encodes it.
func convertLocal(data []byte, src, dst string) (any, error) {
	srcExt, dstExt := codec.Ext(filepath.Base(src)), codec.Ext(dst)
	if src == "-" || srcExt == dstExt || !codec.Structured(srcExt) || !codec.Structured(dstExt) {
		return data, nil
	}
	table, err := codec.New().Decode(data, srcExt, codec.ShapeTable, codec.InferTypes())
	if err != nil {
		return nil, exitError(exitFileReadError, "Failed to decode local file", err)
	}
	return table, nil
}

func runRm(cmd *cobra.Command, args []string) error {
	return objectCommand(cmd, args[0], func(ctx context.Context, s *session, r ObjectRef) error {
		if err := s.store.Delete(ctx, r.Path); err != nil {
			return fail("Failed to delete object", err)
		}
		observability.CLILogger.Info("Object deleted", zap.String("object", r.String()))
		return nil
	})
}

func runStat(cmd *cobra.Command, args []string) error {
	return objectCommand(cmd, args[0], func(ctx context.Context, s *session, r ObjectRef) error {
		meta, err := s.store.GetMetadata(ctx, r.Path)
		if err != nil {
			return fail("Failed to stat object", err)
		}
		return s.out.WriteObject(ctx, objectRecord(meta))
	})
}

func objectRecord(meta *storage.Metadata) *output.ObjectRecord {
	return &output.ObjectRecord{
		Repository:   meta.Repository,
		Path:         meta.Name,
		Kind:         string(provider.EntryFile),
		Size:         meta.Size,
		Version:      meta.Version,
		LastModified: meta.LastModified,
		ContentType:  meta.ContentType,
	}
}

func runURL(cmd *cobra.Command, args []string) error {
	if urlTTL < 0 {
		return exitError(exitInvalidArgument, "Invalid --ttl value", fmt.Errorf("ttl must not be negative"))
	}
	return objectCommand(cmd, args[0], func(ctx context.Context, s *session, r ObjectRef) error {
		ttl := urlTTL
		if ttl == 0 {
			ttl = s.cfg.URLTTL
		}
		if ttl <= 0 {
			ttl = storage.DefaultURLTTL
		}
		u, err := s.store.FileURL(ctx, r.Path, ttl)
		if err != nil {
			return fail("Failed to create URL", err)
		}
		return s.out.WriteURL(ctx, &output.URLRecord{
			Repository: r.Repository,
			Path:       r.Path,
			URL:        u,
			ExpiresAt:  time.Now().Add(ttl).UTC(),
		})
	})
}
