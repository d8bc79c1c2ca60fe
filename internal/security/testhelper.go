package security

import "time"

// Issuer and audience used by NewTestTokenProvider.
const (
	TestIssuer   = "session-auth-test"
	TestAudience = "session-auth-api"
)

// NewTestTokenProvider returns a TokenProvider backed by a freshly generated
// ES256 key and a 15 minute access TTL. For tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	return NewTestTokenProviderWithTTL(15 * time.Minute)
}

// NewTestTokenProviderWithTTL is NewTestTokenProvider with a custom access TTL.
func NewTestTokenProviderWithTTL(accessTTL time.Duration) (*TokenProvider, error) {
	signer, pub, err := GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, pub, TestIssuer, TestAudience, accessTTL), nil
}
