package cmd

import (
	"context"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/storagekit/internal/config"
	"github.com/3leaps/storagekit/internal/observability"
	"github.com/3leaps/storagekit/pkg/auth"
	"github.com/3leaps/storagekit/pkg/factory"
	"github.com/3leaps/storagekit/pkg/output"
	"github.com/3leaps/storagekit/pkg/provider"
	"github.com/3leaps/storagekit/pkg/storage"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the configuration and the provider connection
and suggest fixes for common issues.

Examples:
  storagekit doctor                 # Configured provider
  storagekit doctor --provider gcs  # GCS-specific checks`,
	Args: exactArgs(0),
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// doctorCheck is one diagnostic step. It returns a detail string for the
// report, or an error when the check fails.
type doctorCheck struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := config.GetConfig()
	if cfg == nil {
		return exitError(exitInvalidArgument, "Configuration not loaded", config.ErrNotLoaded)
	}
	log := observability.CLILogger
	out := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.New().String(), cfg.Provider)
	defer func() { _ = out.Close() }()

	var (
		creds auth.Credentials
		gate  *auth.Gate
	)
	defer func() {
		if gate != nil {
			_ = gate.Close()
		}
	}()

	checks := []doctorCheck{
		{"environment", func(context.Context) (string, error) {
			return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH), nil
		}},
		{"config", func(context.Context) (string, error) {
			path := cfgFile
			if path == "" {
				path = config.DefaultConfigPath()
			}
			return path, nil
		}},
		{"provider", func(context.Context) (string, error) {
			c, err := cfg.Credentials()
			if err != nil {
				return "", err
			}
			creds = c
			g, err := factory.NewAuth(c.Provider().String(), auth.WithLogger(log))
			if err != nil {
				return "", err
			}
			gate = g
			return c.Provider().String(), nil
		}},
		{"credentials", func(context.Context) (string, error) {
			if err := gate.SetCredentials(creds); err != nil {
				return "", err
			}
			return fmt.Sprint(creds), nil
		}},
		{"connection", func(ctx context.Context) (string, error) {
			if err := gate.TestCredentials(ctx); err != nil {
				return "", err
			}
			return gate.State().String(), nil
		}},
		{"repository", func(ctx context.Context) (string, error) {
			if cfg.Repository == "" {
				return "none configured", nil
			}
			backend, err := gate.Backend()
			if err != nil {
				return "", err
			}
			repos, err := backend.ListRepositories(ctx)
			if err != nil {
				return "", err
			}
			for _, r := range repos {
				if r.Name == cfg.Repository {
					return cfg.Repository, nil
				}
			}
			return "", fmt.Errorf("%w: %q is not visible to these credentials", provider.ErrRepositoryNotFound, cfg.Repository)
		}},
	}

	log.Info("=== " + config.AppName + " doctor ===")
	var failed error
	for i, c := range checks {
		detail, err := c.run(ctx)
		rec := &output.CheckRecord{Check: c.name, Passed: err == nil, Detail: detail}
		if err != nil {
			kind := storage.KindOf(err)
			rec.ErrorCode = string(kind)
			rec.Detail = err.Error()
			log.Error(fmt.Sprintf("[%d/%d] %s ... failed", i+1, len(checks), c.name), zap.Error(err))
			printDoctorHelp(c.name, cfg.Provider)
			failed = fail(fmt.Sprintf("Check %s failed", c.name), err)
		} else {
			log.Info(fmt.Sprintf("[%d/%d] %s ... ok", i+1, len(checks), c.name), zap.String("detail", detail))
		}
		if werr := out.WriteCheck(ctx, rec); werr != nil {
			return werr
		}
		if err != nil {
			break
		}
	}

	if failed != nil {
		log.Warn("Some checks failed. Review the output above for details.")
		return failed
	}
	log.Info("All checks passed.")
	return nil
}

// printDoctorHelp logs setup hints for the failed check.
func printDoctorHelp(check, providerTag string) {
	log := observability.CLILogger
	switch check {
	case "provider":
		log.Info("Set a provider with --provider, STORAGEKIT_PROVIDER or 'provider:' in the config file.")
	case "credentials", "connection":
		switch providerTag {
		case "s3":
			log.Info("S3 needs s3.access_key_id, s3.secret_access_key and s3.region (or STORAGEKIT_S3_* variables).")
			log.Info("For S3-compatible storage (MinIO, Wasabi), also set s3.endpoint.")
		case "azure":
			log.Info("Azure needs azure.connection_string (STORAGEKIT_AZURE_CONNECTION_STRING).")
		case "gcs", "gcp":
			log.Info("GCS needs gcs.project_id, gcs.client_email, gcs.private_key and gcs.private_key_id,")
			log.Info("or gcs.project_id and gcs.endpoint for an emulator.")
		case "file", "local":
			log.Info("The file provider needs a writable file.base_dir.")
		}
	}
}
