package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/storagekit/internal/observability"
	"github.com/3leaps/storagekit/pkg/output"
	"github.com/3leaps/storagekit/pkg/storage"
)

var cpCmd = &cobra.Command{
	Use:   "cp <source> <target>",
	Short: "Copy an object, within or across repositories",
	Long: `Copy one object. Source and target must have the same extension.

Bare paths refer to the active repository; provider URIs name another
repository on the same connection.

Examples:
  storagekit cp folder_a/file001.csv archive/file001.csv
  storagekit cp s3://raw/orders.parquet s3://curated/orders.parquet --if-absent`,
	Args: exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error { return runTransfer(cmd, args, false) },
}

var mvCmd = &cobra.Command{
	Use:   "mv <source> <target>",
	Short: "Move an object, within or across repositories",
	Long: `Move one object: copy, then delete the source. The source is kept if
the copy fails.

Examples:
  storagekit mv inbox/file001.csv done/file001.csv
  storagekit mv file://inbox/a.json file://archive/a.json`,
	Args: exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error { return runTransfer(cmd, args, true) },
}

var transferIfAbsent bool

func init() {
	rootCmd.AddCommand(cpCmd, mvCmd)
	for _, c := range []*cobra.Command{cpCmd, mvCmd} {
		c.Flags().BoolVar(&transferIfAbsent, "if-absent", false, "Fail if the target already exists")
	}
}

func runTransfer(cmd *cobra.Command, args []string, deleteSource bool) error {
	ctx := cmd.Context()
	op := "copy"
	if deleteSource {
		op = "move"
	}

	s, err := openSession(ctx, cmd.OutOrStdout(), sessionOptions{})
	if err != nil {
		return err
	}
	defer s.close()

	src, err := s.ref(args[0])
	if err != nil {
		return err
	}
	dst, err := s.ref(args[1])
	if err != nil {
		return err
	}
	if src.IsPrefix() || dst.IsPrefix() {
		return exitError(exitInvalidArgument, "Invalid object reference", fmt.Errorf("%s works on single objects; use sync for prefixes", op))
	}

	var opts []storage.WriteOption
	if transferIfAbsent {
		opts = append(opts, storage.IfAbsent())
	}

	var size int64
	if meta, err := s.store.Backend().HeadObject(ctx, src.Repository, src.Path); err == nil {
		size = meta.Size
	}

	err = s.store.MoveBetweenRepositories(ctx, src.Repository, src.Path, dst.Repository, dst.Path, deleteSource, opts...)
	if err != nil {
		return fail(fmt.Sprintf("Failed to %s object", op), err)
	}
	observability.CLILogger.Info("Transfer complete",
		zap.String("op", op), zap.String("source", src.String()), zap.String("target", dst.String()))

	return s.out.WriteTransfer(ctx, &output.TransferRecord{
		Op:     op,
		Source: src.Repository + "/" + src.Path,
		Target: dst.Repository + "/" + dst.Path,
		Size:   size,
	})
}
