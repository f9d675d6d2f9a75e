package s3

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HuyNguyen260398/s3-sync-compress/storage"
)

// fakeS3 is a minimal path-style S3 endpoint: ListObjectsV2, GetObject, PutObject.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte // "bucket/key" -> content
	lists    int
	stsCalls int
	denySTS  bool
}

type listResult struct {
	XMLName               xml.Name      `xml:"ListBucketResult"`
	Name                  string        `xml:"Name"`
	Prefix                string        `xml:"Prefix"`
	KeyCount              int           `xml:"KeyCount"`
	MaxKeys               int           `xml:"MaxKeys"`
	IsTruncated           bool          `xml:"IsTruncated"`
	NextContinuationToken string        `xml:"NextContinuationToken,omitempty"`
	Contents              []listContent `xml:"Contents"`
}

type listContent struct {
	Key          string `xml:"Key"`
	Size         int64  `xml:"Size"`
	ETag         string `xml:"ETag"`
	LastModified string `xml:"LastModified"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")

	switch {
	case r.Method == http.MethodPost && bucket == "":
		f.identity(w, r)
	case r.Method == http.MethodGet && key == "" && r.URL.Query().Get("list-type") == "2":
		f.lists++
		f.list(w, r, bucket)
	case r.Method == http.MethodGet:
		data, ok := f.objects[bucket+"/"+key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	case r.Method == http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+key] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) identity(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "text/xml")
	if r.Form.Get("Action") != "GetCallerIdentity" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.stsCalls++
	if f.denySTS {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `<ErrorResponse><Error><Type>Sender</Type><Code>InvalidClientTokenId</Code><Message>invalid token</Message></Error><RequestId>1</RequestId></ErrorResponse>`)
		return
	}
	fmt.Fprint(w, `<GetCallerIdentityResponse><GetCallerIdentityResult><Arn>arn:aws:iam::123456789012:user/sync</Arn><UserId>AIDTEST</UserId><Account>123456789012</Account></GetCallerIdentityResult><ResponseMetadata><RequestId>1</RequestId></ResponseMetadata></GetCallerIdentityResponse>`)
}

func (f *fakeS3) list(w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()
	prefix := q.Get("prefix")
	maxKeys, _ := strconv.Atoi(q.Get("max-keys"))
	start, _ := strconv.Atoi(q.Get("continuation-token"))

	keys := make([]string, 0)
	for k := range f.objects {
		b, key, _ := strings.Cut(k, "/")
		if b == bucket && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	end := start + maxKeys
	if end > len(keys) {
		end = len(keys)
	}
	res := listResult{Name: bucket, Prefix: prefix, MaxKeys: maxKeys}
	for _, k := range keys[start:end] {
		res.Contents = append(res.Contents, listContent{
			Key:          k,
			Size:         int64(len(f.objects[bucket+"/"+k])),
			ETag:         `"etag"`,
			LastModified: "2024-01-01T00:00:00.000Z",
		})
	}
	res.KeyCount = len(res.Contents)
	if end < len(keys) {
		res.IsTruncated = true
		res.NextContinuationToken = strconv.Itoa(end)
	}
	w.Header().Set("Content-Type", "application/xml")
	_ = xml.NewEncoder(w).Encode(res)
}

func newTestStorage(t *testing.T, keysPerReq int64) (*S3Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	st, err := NewS3Storage(false, "AKIDTEST", "secret", "", "us-east-1", srv.URL, keysPerReq)
	if err != nil {
		t.Fatalf("NewS3Storage: %v", err)
	}
	st.WithSTSEndpoint(srv.URL)
	return st, fake
}

func TestListPaginates(t *testing.T) {
	st, fake := newTestStorage(t, 2)
	for _, k := range []string{"data/a.txt", "data/b.txt", "data/sub/", "data/sub/c.txt", "other/d.txt"} {
		fake.objects["src/"+k] = []byte(k)
	}

	pager := st.List("src", "data/")
	var keys []string
	pages := 0
	for pager.More() {
		page, err := pager.NextPage()
		if err != nil {
			t.Fatalf("NextPage: %v", err)
		}
		pages++
		for _, obj := range page {
			if obj.Bucket != "src" {
				t.Errorf("object bucket = %q, want src", obj.Bucket)
			}
			keys = append(keys, obj.Key)
		}
	}

	want := []string{"data/a.txt", "data/b.txt", "data/sub/", "data/sub/c.txt"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("keys = %v, want %v", keys, want)
	}
	if pages != 2 || fake.lists != 2 {
		t.Errorf("pages = %d, list calls = %d, want 2 and 2", pages, fake.lists)
	}
	if _, err := pager.NextPage(); err != storage.ErrNoMorePages {
		t.Errorf("NextPage after end: %v, want ErrNoMorePages", err)
	}
}

func TestGetObjectMissing(t *testing.T) {
	st, _ := newTestStorage(t, 10)
	dest := filepath.Join(t.TempDir(), "missing.txt")
	err := st.GetObject(&storage.Object{Bucket: "src", Key: "missing.txt"}, dest)
	if err == nil {
		t.Fatal("expected error for missing object")
	}
	if !storage.IsErrNotExist(err) {
		t.Errorf("expected not-exist classification, got %v", err)
	}
}

func TestPutPresignRoundTrip(t *testing.T) {
	st, fake := newTestStorage(t, 10)
	content := bytes.Repeat([]byte("archive-bytes-"), 512)

	src := filepath.Join(t.TempDir(), "s3_sync_20240101_120000.zip")
	if err := os.WriteFile(src, content, 0644); err != nil {
		t.Fatal(err)
	}
	key := storage.JoinKey("synced-files", filepath.Base(src))
	if err := st.PutObject(src, "dst", key); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if _, ok := fake.objects["dst/"+key]; !ok {
		t.Fatalf("object %s was not stored", key)
	}

	u, err := st.PresignGetObject("dst", key, 24*time.Hour)
	if err != nil {
		t.Fatalf("PresignGetObject: %v", err)
	}
	if !strings.Contains(u, "X-Amz-Expires=86400") {
		t.Errorf("presigned url %q does not carry a 24h expiry", u)
	}

	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("GET presigned url: %v", err)
	}
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(got, content) {
		t.Errorf("downloaded %d bytes differ from uploaded %d bytes", len(got), len(content))
	}

	dest := filepath.Join(t.TempDir(), "copy.zip")
	if err := st.GetObject(&storage.Object{Bucket: "dst", Key: key}, dest); err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	back, _ := os.ReadFile(dest)
	if !bytes.Equal(back, content) {
		t.Error("GetObject content differs from uploaded content")
	}
}

func TestVerifyIdentity(t *testing.T) {
	st, fake := newTestStorage(t, 10)
	if err := st.VerifyIdentity(context.Background()); err != nil {
		t.Fatalf("VerifyIdentity: %v", err)
	}

	fake.mu.Lock()
	fake.denySTS = true
	fake.mu.Unlock()
	err := st.VerifyIdentity(context.Background())
	if err == nil {
		t.Fatal("expected rejected credentials")
	}
	if !strings.Contains(err.Error(), "InvalidClientTokenId") {
		t.Errorf("err = %v", err)
	}
}

func TestVerifyIdentityIgnoresS3Endpoint(t *testing.T) {
	st, s3Fake := newTestStorage(t, 10)
	s3Fake.mu.Lock()
	s3Fake.denySTS = true
	s3Fake.mu.Unlock()

	stsFake := &fakeS3{objects: map[string][]byte{}}
	stsSrv := httptest.NewServer(stsFake)
	t.Cleanup(stsSrv.Close)
	st.WithSTSEndpoint(stsSrv.URL)

	if err := st.VerifyIdentity(context.Background()); err != nil {
		t.Fatalf("VerifyIdentity: %v", err)
	}
	if s3Fake.stsCalls != 0 || stsFake.stsCalls != 1 {
		t.Errorf("identity calls: s3 host %d, sts host %d, want 0 and 1", s3Fake.stsCalls, stsFake.stsCalls)
	}

	st.WithSTSEndpoint("")
	endpoint := st.stsClient().Endpoint
	if !strings.Contains(endpoint, "sts.") || strings.HasPrefix(endpoint, stsSrv.URL) {
		t.Errorf("default sts endpoint = %q", endpoint)
	}
	if st.awsSvc.Endpoint == endpoint {
		t.Errorf("sts client shares the s3 endpoint %q", endpoint)
	}
}
