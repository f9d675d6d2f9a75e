package main

import (
	"context"
	"fmt"
	"time"

	"github.com/HuyNguyen260398/s3-sync-compress/pipeline"
	"github.com/HuyNguyen260398/s3-sync-compress/status"
)

func printLiveStats(ctx context.Context, syncGroup *pipeline.Group) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dur := time.Since(syncGroup.StartTime).Seconds()
			for _, val := range syncGroup.GetStepsInfo() {
				_, _ = fmt.Fprintf(live, "%d %s: Input: %d; Output: %d (%.f obj/sec); Errors: %d\n", val.Num, val.Name, val.Stats.Input, val.Stats.Output, float64(val.Stats.Output)/dur, val.Stats.Error)
			}
			_, _ = fmt.Fprintf(live, "Duration: %s\n", time.Since(syncGroup.StartTime).String())
		}
	}
}

func printFinalStats(syncGroup *pipeline.Group, final status.RunStatus, st syncStatus) {
	dur := time.Since(syncGroup.StartTime).Seconds()
	for _, val := range syncGroup.GetStepsInfo() {
		log.Infof("%d %s: Input: %d; Output: %d (%.f obj/sec); Errors: %d", val.Num, val.Name, val.Stats.Input, val.Stats.Output, float64(val.Stats.Output)/dur, val.Stats.Error)
	}
	log.Infof("Duration: %s", time.Since(syncGroup.StartTime).String())
	log.Infof("Final status: %s - %s", final.Status, final.Message)
	if final.DownloadURL != "" {
		log.Infof("Download URL: %s", final.DownloadURL)
	}

	switch st {
	case syncStatusOk:
		log.Infof("Sync Done")
	case syncStatusFailed:
		log.Error("Sync Failed")
	case syncStatusAborted:
		log.Warnf("Sync Aborted")
	case syncStatusConfError:
		log.Errorf("Sync Configuration error")
	default:
		log.Warnf("Sync Unknown status")
	}
}
