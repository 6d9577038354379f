package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Xornent/sync/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		variant   string
		localRoot string
		database  string
		storeKind string
		bucket    string
		region    string
		endpoint  string
	)

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a new task's configuration file",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			appDir, err := resolveAppDir()
			if err != nil {
				return err
			}

			cfg := &config.TaskConfig{
				Name:      flagTask,
				Variant:   config.Variant(variant),
				LocalRoot: localRoot,
				Database:  database,
				Store: config.StoreConfig{
					Kind:     config.StoreKind(storeKind),
					Bucket:   bucket,
					Region:   region,
					Endpoint: endpoint,
				},
			}

			path := config.FilePath(appDir, flagTask)
			if err := config.Save(path, cfg); err != nil {
				return fmt.Errorf("creating task %q: %w", flagTask, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)

			return nil
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "tree", `task variant: "tree" or "blob"`)
	cmd.Flags().StringVar(&localRoot, "local-root", "", "synced directory (tree variant)")
	cmd.Flags().StringVar(&database, "database", "", "database name/path (blob variant)")
	cmd.Flags().StringVar(&storeKind, "store-kind", "local", `object-store driver: "local" or "s3"`)
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket name (s3) or directory (local)")
	cmd.Flags().StringVar(&region, "region", "", "S3 region")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "S3-compatible endpoint override")

	return cmd
}
