// Package storage provides interface for working with object storages like Amazon S3 and local FS.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Log implement Logrus logger for debug logging.
var Log = logrus.New()

// Type of Storage.
type Type int

// Storage types.
const (
	TypeS3 Type = iota + 1
	TypeFS
)

// DirMarkerSuffix is the key suffix of pseudo-directory objects.
const DirMarkerSuffix = "/"

// ErrNoMorePages is returned by Pager.NextPage after the last page was consumed.
var ErrNoMorePages = errors.New("no more pages")

// Object describes a remote object found by listing.
// It lives only while the listing is consumed.
type Object struct {
	Bucket string
	Prefix string
	Key    string
	Size   int64
	ETag   string
	Mtime  time.Time
}

// IsDirMarker reports whether the object is a pseudo-directory marker.
func (o *Object) IsDirMarker() bool {
	return IsDirMarker(o.Key)
}

// Pager is a lazy, finite sequence of listing pages.
// Each NextPage call fetches one page from the storage, it can not be restarted.
type Pager interface {
	More() bool
	NextPage() ([]*Object, error)
}

// Storage interface.
type Storage interface {
	WithContext(ctx context.Context)
	WithRateLimit(limit int) error
	List(bucket, prefix string) Pager
	GetObject(obj *Object, destPath string) error
	PutObject(srcPath, bucket, key string) error
	PresignGetObject(bucket, key string, ttl time.Duration) (string, error)
	GetStorageType() Type
}
