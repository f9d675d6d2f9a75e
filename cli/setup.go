package main

import (
	"context"
	"fmt"

	"github.com/HuyNguyen260398/s3-sync-compress/pipeline"
	"github.com/HuyNguyen260398/s3-sync-compress/pipeline/collection"
	"github.com/HuyNguyen260398/s3-sync-compress/storage"
	"github.com/HuyNguyen260398/s3-sync-compress/storage/fs"
	"github.com/HuyNguyen260398/s3-sync-compress/storage/s3"
)

func setupStorages(ctx context.Context, syncGroup *pipeline.Group, cli *argsParsed) error {
	var sourceStorage, targetStorage storage.Storage
	switch cli.StorageType {
	case storage.TypeS3:
		src, err := s3.NewS3Storage(false, cli.AccessKey, cli.SecretKey, cli.SessionToken, cli.Region, cli.Endpoint, cli.S3KeysPerReq)
		if err != nil {
			return err
		}
		tgt, err := s3.NewS3Storage(false, cli.AccessKey, cli.SecretKey, cli.SessionToken, cli.Region, cli.Endpoint, cli.S3KeysPerReq)
		if err != nil {
			return err
		}
		src.WithSTSEndpoint(cli.STSEndpoint)
		syncGroup.SetGate(&pipeline.Gate{
			AccessKey: cli.AccessKey,
			SecretKey: cli.SecretKey,
			Verifier:  src,
			Timeout:   cli.VerifyTimeout,
		})
		sourceStorage, targetStorage = src, tgt
	case storage.TypeFS:
		sourceStorage = fs.NewFSStorage(cli.FSRoot, cli.FSFilePerm, cli.FSDirPerm, int(cli.S3KeysPerReq))
		targetStorage = fs.NewFSStorage(cli.FSRoot, cli.FSFilePerm, cli.FSDirPerm, int(cli.S3KeysPerReq))
	}

	if sourceStorage == nil {
		return fmt.Errorf("source storage is nil")
	} else if targetStorage == nil {
		return fmt.Errorf("target storage is nil")
	}

	sourceStorage.WithContext(ctx)
	targetStorage.WithContext(ctx)

	if cli.RateLimitBandwidth > 0 {
		for _, st := range []storage.Storage{sourceStorage, targetStorage} {
			if err := st.WithRateLimit(cli.RateLimitBandwidth); err != nil {
				return fmt.Errorf("bandwidth limit error: %w", err)
			}
		}
	}

	syncGroup.SetSource(sourceStorage)
	syncGroup.SetTarget(targetStorage)
	return nil
}

func setupPipeline(syncGroup *pipeline.Group, cli *argsParsed) {
	syncGroup.TargetBucket = cli.TargetBucket

	syncGroup.AddPipeStep(pipeline.Step{
		Name: "FetchObjects",
		Fn:   collection.FetchObjects,
		Config: collection.FetchConfig{
			Bucket:    cli.SourceBucket,
			Prefix:    cli.SourcePrefix,
			MirrorDir: cli.DataDir,
		},
	})

	syncGroup.AddPipeStep(pipeline.Step{
		Name:   "BuildArchive",
		Fn:     collection.BuildArchive,
		Config: collection.ArchiveConfig{OutputDir: cli.OutputDir},
	})

	syncGroup.AddPipeStep(pipeline.Step{
		Name: "PublishArchive",
		Fn:   collection.PublishArchive,
		Config: collection.PublishConfig{
			Bucket:     cli.TargetBucket,
			Prefix:     cli.TargetPrefix,
			KeepTotals: cli.StatusKeepTotals,
		},
	})
}
