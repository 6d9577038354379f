package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Xornent/sync/internal/cli"
	"github.com/Xornent/sync/internal/config"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show the three-way comparison without transferring anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiff(cmd)
		},
	}
}

func runDiff(cmd *cobra.Command) error {
	cc := cliContextFrom(cmd.Context())
	ctx := cmd.Context()

	switch cc.Cfg.Variant {
	case config.VariantTree:
		s, err := newTreeSync(ctx, cc)
		if err != nil {
			return err
		}

		p, err := s.Diff(ctx)
		if err != nil {
			return fmt.Errorf("diff: %w", err)
		}

		cli.PrintTreeDiff(cmd.OutOrStdout(), p)

		return nil

	case config.VariantBlob:
		s, err := newBlobSync(ctx, cc)
		if err != nil {
			return err
		}

		r, err := s.Diff(ctx)
		if err != nil {
			return fmt.Errorf("diff: %w", err)
		}

		cli.PrintBlobDiff(cmd.OutOrStdout(), r)

		return nil

	default:
		return fmt.Errorf("task %q has unknown variant %q", cc.Cfg.Name, cc.Cfg.Variant)
	}
}
