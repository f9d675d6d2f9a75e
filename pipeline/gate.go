package pipeline

import (
	"context"
	"time"
)

// DefaultVerifyTimeout bounds the identity check call.
const DefaultVerifyTimeout = 10 * time.Second

// IdentityVerifier checks credentials against the provider's identity service.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context) error
}

// Gate makes sure storage credentials exist and work before any transfer starts.
type Gate struct {
	AccessKey string
	SecretKey string
	Verifier  IdentityVerifier
	Timeout   time.Duration
}

// Check fails with *ConfigurationError when a secret is missing and with
// *CredentialVerificationError when the identity call fails or times out.
// There are no retries.
func (g *Gate) Check(ctx context.Context) error {
	if g.AccessKey == "" || g.SecretKey == "" {
		return &ConfigurationError{Setting: "AWS credentials", Msg: "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required"}
	}
	if g.Verifier == nil {
		return nil
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := g.Verifier.VerifyIdentity(vctx); err != nil {
		if vctx.Err() != nil {
			return &CredentialVerificationError{Err: vctx.Err()}
		}
		return &CredentialVerificationError{Err: err}
	}
	Log.Infof("AWS credentials verified successfully")
	return nil
}
