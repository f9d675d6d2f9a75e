package fs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/larrabee/ratelimit"

	"github.com/HuyNguyen260398/s3-sync-compress/storage"
)

// FSStorage serves buckets as sub-directories of a root dir.
type FSStorage struct {
	dir        string
	filePerm   os.FileMode
	dirPerm    os.FileMode
	keysPerReq int
	ctx        context.Context
	rlBucket   ratelimit.Bucket
	now        func() time.Time
}

// NewFSStorage return new configured FS storage.
//
// You should always create new storage with this constructor.
func NewFSStorage(dir string, filePerm, dirPerm os.FileMode, keysPerReq int) *FSStorage {
	if keysPerReq <= 0 {
		keysPerReq = 1000
	}
	return &FSStorage{
		dir:        filepath.Clean(dir),
		filePerm:   filePerm,
		dirPerm:    dirPerm,
		keysPerReq: keysPerReq,
		ctx:        context.TODO(),
		rlBucket:   ratelimit.NewFakeBucket(),
		now:        time.Now,
	}
}

// WithContext add's context to storage.
func (st *FSStorage) WithContext(ctx context.Context) {
	st.ctx = ctx
}

// WithRateLimit set rate limit (bytes/sec) for storage.
func (st *FSStorage) WithRateLimit(limit int) error {
	bucket, err := ratelimit.NewBucketWithRate(float64(limit), int64(limit))
	if err != nil {
		return err
	}
	st.rlBucket = bucket
	return nil
}

func (st *FSStorage) objectPath(bucket, key string) string {
	return filepath.Join(st.dir, bucket, filepath.FromSlash(key))
}

// List returns a pager over files of bucket dir whose key starts with prefix.
// Empty directories are reported as "dir/" marker keys.
func (st *FSStorage) List(bucket, prefix string) storage.Pager {
	return &listPager{st: st, bucket: bucket, prefix: prefix}
}

type listPager struct {
	st      *FSStorage
	bucket  string
	prefix  string
	walked  bool
	objects []*storage.Object
	done    bool
}

func (p *listPager) More() bool {
	return !p.done
}

func (p *listPager) NextPage() ([]*storage.Object, error) {
	if p.done {
		return nil, storage.ErrNoMorePages
	}
	if !p.walked {
		p.walked = true
		if err := p.walk(); err != nil {
			p.done = true
			return nil, err
		}
	}

	n := p.st.keysPerReq
	if n > len(p.objects) {
		n = len(p.objects)
	}
	page := p.objects[:n]
	p.objects = p.objects[n:]
	if len(p.objects) == 0 {
		p.done = true
		storage.Log.Debugf("Listing bucket %s finished", p.bucket)
	}
	return page, nil
}

func (p *listPager) walk() error {
	root := filepath.Join(p.st.dir, p.bucket)
	scratch := make([]byte, godirwalk.MinimumScratchBufferSize)

	err := godirwalk.Walk(root, &godirwalk.Options{
		ScratchBuffer: scratch,
		Callback: func(path string, de *godirwalk.Dirent) error {
			select {
			case <-p.st.ctx.Done():
				return p.st.ctx.Err()
			default:
			}
			if path == root {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			key := filepath.ToSlash(rel)

			if de.IsDir() {
				names, err := godirwalk.ReadDirnames(path, nil)
				if err != nil {
					return err
				}
				if len(names) == 0 {
					p.add(key+storage.DirMarkerSuffix, path)
				}
				return nil
			}
			if de.IsRegular() {
				p.add(key, path)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	sort.Slice(p.objects, func(i, j int) bool { return p.objects[i].Key < p.objects[j].Key })
	return nil
}

func (p *listPager) add(key, path string) {
	if !strings.HasPrefix(key, p.prefix) {
		return
	}
	obj := &storage.Object{Bucket: p.bucket, Prefix: p.prefix, Key: key}
	if info, err := os.Stat(path); err == nil {
		obj.Mtime = info.ModTime()
		if !info.IsDir() {
			obj.Size = info.Size()
		}
	}
	p.objects = append(p.objects, obj)
}

// GetObject copies object content to destPath.
func (st *FSStorage) GetObject(obj *storage.Object, destPath string) error {
	src, err := os.Open(st.objectPath(obj.Bucket, obj.Key))
	if err != nil {
		return err
	}
	defer src.Close()

	return copyTo(destPath, ratelimit.NewReader(src, st.rlBucket), st.filePerm)
}

// PutObject copies local file srcPath into bucket as key.
func (st *FSStorage) PutObject(srcPath, bucket, key string) error {
	destPath := st.objectPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(destPath), st.dirPerm); err != nil {
		return err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	return copyTo(destPath, ratelimit.NewReader(src, st.rlBucket), st.filePerm)
}

// PresignGetObject returns a file:// URL of the object with an expires query parameter.
// Expiry is informational only, local files carry no signature.
func (st *FSStorage) PresignGetObject(bucket, key string, ttl time.Duration) (string, error) {
	path, err := filepath.Abs(st.objectPath(bucket, key))
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}

	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(path),
		RawQuery: url.Values{"expires": {strconv.FormatInt(st.now().Add(ttl).Unix(), 10)}}.Encode(),
	}
	return u.String(), nil
}

// GetStorageType return storage type.
func (st *FSStorage) GetStorageType() storage.Type {
	return storage.TypeFS
}

func copyTo(destPath string, r io.Reader, perm os.FileMode) error {
	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
