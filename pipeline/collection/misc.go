// Package collection contains the StepFn functions of the sync-compress-upload run.
package collection

import (
	"fmt"

	"github.com/HuyNguyen260398/s3-sync-compress/storage"
)

// ProgressInterval is how many items a step processes between intermediate status updates.
const ProgressInterval = 5

// location renders bucket/prefix as a URL of the storage type.
func location(st storage.Storage, bucket, prefix string) string {
	scheme := "s3"
	if st != nil && st.GetStorageType() == storage.TypeFS {
		scheme = "fs"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, bucket, prefix)
}
