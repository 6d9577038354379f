package main

import (
	"context"
	"fmt"

	"github.com/Xornent/sync/internal/blobsync"
	"github.com/Xornent/sync/internal/config"
	"github.com/Xornent/sync/internal/dumpdriver"
	"github.com/Xornent/sync/internal/treesync"
)

func newTreeSync(ctx context.Context, cc *CLIContext) (*treesync.Sync, error) {
	if cc.Cfg.Variant != config.VariantTree {
		return nil, fmt.Errorf("task %q is a %s task, not a tree task", cc.Cfg.Name, cc.Cfg.Variant)
	}

	store, err := buildStore(ctx, cc.Cfg.Store, cc.Cfg.LocalRoot, cc.Logger)
	if err != nil {
		return nil, err
	}

	paths := config.NewTreePaths(cc.TaskDir)

	return treesync.New(store, cc.Cfg.LocalRoot, treesync.Paths{
		CurrentManifest:   paths.CurrentManifest,
		LastLocalManifest: paths.LastLocalManifest,
	}, treesync.Remote{ManifestKey: config.TreeManifestKey}, buildPrompter(cc.Logger), cc.Logger), nil
}

func newBlobSync(ctx context.Context, cc *CLIContext) (*blobsync.Sync, error) {
	if cc.Cfg.Variant != config.VariantBlob {
		return nil, fmt.Errorf("task %q is a %s task, not a blob task", cc.Cfg.Name, cc.Cfg.Variant)
	}

	// destRoot for a blob task's store is the task directory itself: the
	// dump file and its backup live alongside the manifests, not under a
	// synced tree (there is none).
	store, err := buildStore(ctx, cc.Cfg.Store, cc.TaskDir, cc.Logger)
	if err != nil {
		return nil, err
	}

	paths := config.NewBlobPaths(cc.TaskDir)
	driver := dumpdriver.NewSQLiteDriver(cc.Cfg.Database, cc.Logger)

	return blobsync.New(store, driver, blobsync.Paths{
		CurrentManifest:   paths.CurrentManifest,
		LastLocalManifest: paths.LastLocalManifest,
		DumpFile:          paths.DumpFile,
		BackupFile:        paths.BackupFile,
	}, blobsync.Remote{
		ManifestKey: config.BlobManifestKey(cc.Cfg.Database),
		DumpKey:     config.BlobDumpKey(cc.Cfg.Database),
	}, buildPrompter(cc.Logger), cc.Logger), nil
}
