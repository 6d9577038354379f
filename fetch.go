package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Xornent/sync/internal/blobsync"
	"github.com/Xornent/sync/internal/cli"
	"github.com/Xornent/sync/internal/config"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download remote changes into the local working tree",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd)
		},
	}
}

func runFetch(cmd *cobra.Command) error {
	cc := cliContextFrom(cmd.Context())
	ctx := cmd.Context()

	switch cc.Cfg.Variant {
	case config.VariantTree:
		s, err := newTreeSync(ctx, cc)
		if err != nil {
			return err
		}

		report, err := s.Fetch(ctx)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}

		cli.PrintTreeReport(cmd.OutOrStdout(), report)

		return nil

	case config.VariantBlob:
		s, err := newBlobSync(ctx, cc)
		if err != nil {
			return err
		}

		report, err := s.Fetch(ctx)
		if err != nil && !errors.Is(err, blobsync.ErrUserCancelled) {
			return fmt.Errorf("fetch: %w", err)
		}

		cli.PrintBlobReport(cmd.OutOrStdout(), report)

		return nil

	default:
		return fmt.Errorf("task %q has unknown variant %q", cc.Cfg.Name, cc.Cfg.Variant)
	}
}
