package s3

import (
	"context"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/larrabee/ratelimit"

	"github.com/HuyNguyen260398/s3-sync-compress/storage"
)

// S3Storage configuration.
type S3Storage struct {
	awsSvc      *s3.S3
	awsSession  *session.Session
	uploader    *s3manager.Uploader
	keysPerReq  int64
	stsEndpoint string
	ctx         context.Context
	rlBucket    ratelimit.Bucket
}

// NewS3Storage return new configured S3 storage.
//
// You should always create new storage with this constructor.
func NewS3Storage(awsNoSign bool, awsAccessKey, awsSecretKey, awsToken, awsRegion, endpoint string, keysPerReq int64) (*S3Storage, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, err
	}
	sess.Config.S3ForcePathStyle = aws.Bool(true)
	sess.Config.CredentialsChainVerboseErrors = aws.Bool(true)
	sess.Config.Region = aws.String(awsRegion)

	if awsNoSign {
		sess.Config.Credentials = credentials.AnonymousCredentials
	} else if awsAccessKey != "" || awsSecretKey != "" {
		sess.Config.Credentials = credentials.NewStaticCredentials(awsAccessKey, awsSecretKey, awsToken)
	}

	if endpoint != "" {
		sess.Config.Endpoint = aws.String(endpoint)
	}
	if aws.StringValue(sess.Config.Region) == "" {
		sess.Config.Region = aws.String("us-east-1")
	}
	if keysPerReq <= 0 {
		keysPerReq = 1000
	}

	svc := s3.New(sess)
	st := S3Storage{
		awsSvc:     svc,
		awsSession: sess,
		uploader:   s3manager.NewUploaderWithClient(svc),
		keysPerReq: keysPerReq,
		ctx:        context.TODO(),
		rlBucket:   ratelimit.NewFakeBucket(),
	}

	return &st, nil
}

// WithContext add's context to storage.
func (st *S3Storage) WithContext(ctx context.Context) {
	st.ctx = ctx
}

// WithRateLimit set rate limit (bytes/sec) for storage.
func (st *S3Storage) WithRateLimit(limit int) error {
	bucket, err := ratelimit.NewBucketWithRate(float64(limit), int64(limit))
	if err != nil {
		return err
	}
	st.rlBucket = bucket
	return nil
}

// List returns a pager over bucket objects under prefix.
// Nothing is requested until the first NextPage call.
func (st *S3Storage) List(bucket, prefix string) storage.Pager {
	return &listPager{
		st: st,
		input: &s3.ListObjectsV2Input{
			Bucket:       aws.String(bucket),
			Prefix:       aws.String(prefix),
			MaxKeys:      aws.Int64(st.keysPerReq),
			EncodingType: aws.String(s3.EncodingTypeUrl),
		},
	}
}

type listPager struct {
	st    *S3Storage
	input *s3.ListObjectsV2Input
	done  bool
}

func (p *listPager) More() bool {
	return !p.done
}

func (p *listPager) NextPage() ([]*storage.Object, error) {
	if p.done {
		return nil, storage.ErrNoMorePages
	}

	out, err := p.st.awsSvc.ListObjectsV2WithContext(p.st.ctx, p.input)
	if err != nil {
		p.done = true
		storage.Log.Debugf("S3 listing failed with error: %s", err)
		return nil, err
	}

	page := make([]*storage.Object, 0, len(out.Contents))
	for _, o := range out.Contents {
		key, err := url.QueryUnescape(aws.StringValue(o.Key))
		if err != nil {
			key = aws.StringValue(o.Key)
		}
		page = append(page, &storage.Object{
			Bucket: aws.StringValue(p.input.Bucket),
			Prefix: aws.StringValue(p.input.Prefix),
			Key:    key,
			Size:   aws.Int64Value(o.Size),
			ETag:   storage.StrongEtag(o.ETag),
			Mtime:  aws.TimeValue(o.LastModified),
		})
	}

	if aws.BoolValue(out.IsTruncated) && aws.StringValue(out.NextContinuationToken) != "" {
		p.input.ContinuationToken = out.NextContinuationToken
	} else {
		p.done = true
		storage.Log.Debugf("Listing bucket %s finished", aws.StringValue(p.input.Bucket))
	}
	return page, nil
}

// GetObject downloads object content to destPath.
func (st *S3Storage) GetObject(obj *storage.Object, destPath string) error {
	input := &s3.GetObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	}

	result, err := st.awsSvc.GetObjectWithContext(st.ctx, input)
	if err != nil {
		return err
	}
	defer result.Body.Close()

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(ratelimit.NewWriter(f, st.rlBucket), result.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// PutObject uploads the local file srcPath to bucket/key.
func (st *S3Storage) PutObject(srcPath, bucket, key string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	input := &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   ratelimit.NewReader(f, st.rlBucket),
	}
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		input.ContentType = aws.String(ct)
	}

	_, err = st.uploader.UploadWithContext(st.ctx, input)
	return err
}

// PresignGetObject returns a GET URL for bucket/key valid for ttl.
func (st *S3Storage) PresignGetObject(bucket, key string, ttl time.Duration) (string, error) {
	req, _ := st.awsSvc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return req.Presign(ttl)
}

// GetStorageType return storage type.
func (st *S3Storage) GetStorageType() storage.Type {
	return storage.TypeS3
}
