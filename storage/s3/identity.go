package s3

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sts"

	"github.com/HuyNguyen260398/s3-sync-compress/storage"
)

// WithSTSEndpoint set the endpoint used for identity checks.
// Empty means the default STS endpoint of the region, whatever the S3 endpoint is.
func (st *S3Storage) WithSTSEndpoint(endpoint string) {
	st.stsEndpoint = endpoint
}

// stsClient builds the STS client on a session copy, so the S3 endpoint never leaks into it.
func (st *S3Storage) stsClient() *sts.STS {
	return sts.New(st.awsSession.Copy(&aws.Config{Endpoint: aws.String(st.stsEndpoint)}))
}

// VerifyIdentity asks STS who the configured credentials belong to.
// The call is bounded by ctx only.
func (st *S3Storage) VerifyIdentity(ctx context.Context) error {
	out, err := st.stsClient().GetCallerIdentityWithContext(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return err
	}
	storage.Log.Debugf("AWS identity: %s (account %s)", aws.StringValue(out.Arn), aws.StringValue(out.Account))
	return nil
}
