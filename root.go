package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Xornent/sync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagTask    string
	flagAppDir  string
	flagYes     bool
	flagVerbose bool
	flagQuiet   bool
)

// CLIContext bundles the resolved task config and logger for one
// invocation. Built once in PersistentPreRunE, mirroring the teacher's own
// CLIContext/cliContextKey pattern.
type CLIContext struct {
	Cfg     *config.TaskConfig
	TaskDir string
	Logger  *slog.Logger
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// skipConfigAnnotation marks commands that load (or create) the task config
// themselves, such as "init".
const skipConfigAnnotation = "skipConfig"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bsync",
		Short:         "Single-writer bucket synchronizer",
		Long:          "A two-way synchronizer between a local working tree (or a database dump) and a remote object-store bucket.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadTaskContext(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagTask, "task", "", "task name (selects the on-disk task directory)")
	cmd.PersistentFlags().StringVar(&flagAppDir, "app-dir", "", "application directory (default: ~/.bsync)")
	cmd.PersistentFlags().BoolVarP(&flagYes, "yes", "y", false, "accept every prompt default without blocking on stdin")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable info-level logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress all but error-level logging")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	cmd.MarkPersistentFlagRequired("task")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newPushCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newDiffCmd())

	return cmd
}

// resolveAppDir returns the --app-dir flag value, falling back to
// config.DefaultAppDir() when unset. Shared by loadTaskContext and init so
// the two never resolve a task's directory differently.
func resolveAppDir() (string, error) {
	if flagAppDir != "" {
		return flagAppDir, nil
	}

	return config.DefaultAppDir()
}

func loadTaskContext(cmd *cobra.Command) error {
	appDir, err := resolveAppDir()
	if err != nil {
		return err
	}

	taskDir := config.TaskDir(appDir, flagTask)

	logger := buildLogger()

	cfg, err := config.Load(config.FilePath(appDir, flagTask))
	if err != nil {
		return fmt.Errorf("loading task %q: %w", flagTask, err)
	}

	cc := &CLIContext{Cfg: cfg, TaskDir: taskDir, Logger: logger}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
