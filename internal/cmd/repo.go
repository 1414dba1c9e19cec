package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/storagekit/internal/observability"
	"github.com/3leaps/storagekit/pkg/output"
)

var repoCmd = &cobra.Command{
	Use:     "repo",
	Aliases: []string{"repository"},
	Short:   "List and create repositories (buckets, containers, directories)",
}

var repoLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List repositories visible to the credentials",
	Long: `List repositories visible to the configured credentials.

Examples:
  storagekit repo ls --provider s3
  storagekit repo ls --provider file`,
	Args: exactArgs(0),
	RunE: runRepoLs,
}

var repoCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a repository",
	Long: `Create a repository. Fails if one with the same name already exists,
unless --exist-ok is set.

Examples:
  storagekit repo create lab-xpto --provider azure
  storagekit repo create lab-xpto --exist-ok`,
	Args: exactArgs(1),
	RunE: runRepoCreate,
}

var repoExistOK bool

func init() {
	rootCmd.AddCommand(repoCmd)
	repoCmd.AddCommand(repoLsCmd, repoCreateCmd)

	repoCreateCmd.Flags().BoolVar(&repoExistOK, "exist-ok", false, "Select the repository instead of failing when it exists")
}

func runRepoLs(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd.OutOrStdout(), sessionOptions{noRepository: true})
	if err != nil {
		return err
	}
	defer s.close()

	start := time.Now()
	repos, err := s.store.ListRepositories(ctx)
	if err != nil {
		return fail("Failed to list repositories", err)
	}
	for _, r := range repos {
		if err := s.out.WriteRepository(ctx, &output.RepositoryRecord{Name: r.Name, CreatedAt: r.CreatedAt}); err != nil {
			return err
		}
	}
	dur := time.Since(start)
	return s.out.WriteSummary(ctx, &output.SummaryRecord{
		Op:            "repo_ls",
		Succeeded:     int64(len(repos)),
		Duration:      dur,
		DurationHuman: formatDuration(dur),
	})
}

func runRepoCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]
	s, err := openSession(ctx, cmd.OutOrStdout(), sessionOptions{noRepository: true})
	if err != nil {
		return err
	}
	defer s.close()

	if repoExistOK {
		err = s.store.SetOrCreateRepository(ctx, name)
	} else {
		err = s.store.CreateRepository(ctx, name)
	}
	if err != nil {
		return fail("Failed to create repository", err)
	}
	observability.CLILogger.Info("Repository ready", zap.String("repository", name))
	return s.out.WriteRepository(ctx, &output.RepositoryRecord{Name: name})
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return d.Round(100 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
