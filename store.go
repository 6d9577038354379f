package main

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Xornent/sync/internal/config"
	"github.com/Xornent/sync/internal/objectstore"
	"github.com/Xornent/sync/internal/resolve"
)

// buildStore constructs the object-store driver a task's Store config
// names, destRoot being the local directory *Rel operations resolve
// against (the tree root for a tree task, the task directory for a blob
// task, whose dump file lives alongside the manifests).
func buildStore(ctx context.Context, sc config.StoreConfig, destRoot string, logger *slog.Logger) (objectstore.Store, error) {
	switch sc.Kind {
	case config.StoreLocal:
		return objectstore.NewLocalStore(sc.Bucket, destRoot, logger), nil

	case config.StoreS3:
		var opts []func(*awsconfig.LoadOptions) error
		if sc.Region != "" {
			opts = append(opts, awsconfig.WithRegion(sc.Region))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}

		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if sc.Endpoint != "" {
				o.BaseEndpoint = &sc.Endpoint
				o.UsePathStyle = true
			}
		})

		return objectstore.NewS3Store(client, sc.Bucket, destRoot, logger), nil

	default:
		return nil, fmt.Errorf("store: unknown kind %q", sc.Kind)
	}
}

// buildPrompter returns the interactive resolver unless --yes was passed,
// in which case every prompt applies its row default without touching
// stdin (spec §4.D models cancellation as "select none"; --yes instead
// selects every bucket's documented default).
func buildPrompter(logger *slog.Logger) resolve.Prompter {
	if flagYes {
		return resolve.DefaultsPrompter{}
	}

	return resolve.NewStdPrompter(nil, nil, logger)
}
