package storage

import (
	"fmt"
	"strings"
	"time"

	"picmark/gallery/internal/apperr"
	"picmark/gallery/internal/domain"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// DefaultCredentialTTL is the lifetime of an upload credential when none is configured.
const DefaultCredentialTTL = 3600 * time.Second

// ReturnBodyTemplate is filled in by the store after an upload and returned straight to
// the client, so the server never has to ask the store what was written.
const ReturnBodyTemplate = `{"key":"$(key)","hash":"$(etag)","fname":"$(fname)","size":$(fsize),"mimeType":"$(mimeType)","width":$(imageInfo.width),"height":$(imageInfo.height)}`

// PutPolicy is the signed body of an upload credential.
type PutPolicy struct {
	Scope      string `json:"scope"` // "bucket" or "bucket:key"
	ReturnBody string `json:"returnBody"`
	jwt.RegisteredClaims
}

// CredentialIssuer signs time-limited upload credentials scoped to one bucket or one key.
// It is stateless; every Issue call yields an independent credential.
type CredentialIssuer struct {
	bucket    string
	accessKey string
	secret    []byte
	ttl       time.Duration
	now       func() time.Time
}

type IssuerOption func(*CredentialIssuer)

// WithIssuerClock replaces the clock used for issuance and expiry checks.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *CredentialIssuer) { i.now = now }
}

func NewCredentialIssuer(bucket, accessKey, secret string, ttl time.Duration, opts ...IssuerOption) *CredentialIssuer {
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	i := &CredentialIssuer{
		bucket:    bucket,
		accessKey: accessKey,
		secret:    []byte(secret),
		ttl:       ttl,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Scope returns the credential scope for storageKey; an empty key scopes the whole bucket.
func (i *CredentialIssuer) Scope(storageKey string) string {
	if storageKey == "" {
		return i.bucket
	}
	return i.bucket + ":" + storageKey
}

// Issue signs a credential for storageKey. It fails only when the issuer is misconfigured.
func (i *CredentialIssuer) Issue(storageKey string) (domain.UploadCredential, error) {
	const op = "CredentialIssuer.Issue"

	if len(i.secret) == 0 {
		return domain.UploadCredential{}, apperr.E(apperr.CodeConfiguration, op, "signing secret is not configured", nil)
	}
	if i.bucket == "" {
		return domain.UploadCredential{}, apperr.E(apperr.CodeConfiguration, op, "storage bucket is not configured", nil)
	}

	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.ttl)
	policy := &PutPolicy{
		Scope:      i.Scope(storageKey),
		ReturnBody: ReturnBodyTemplate,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.accessKey,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, policy).SignedString(i.secret)
	if err != nil {
		return domain.UploadCredential{}, apperr.E(apperr.CodeConfiguration, op, "failed to sign upload credential", err)
	}

	return domain.UploadCredential{
		Token:      token,
		StorageKey: storageKey,
		ExpiresAt:  expiresAt.UTC().Truncate(time.Second),
	}, nil
}

// Verify checks that token was signed by this issuer, has not expired and authorizes
// an upload to storageKey. A bucket-wide credential authorizes any key in the bucket.
// Expiry is judged against the issuer clock.
func (i *CredentialIssuer) Verify(token, storageKey string) (*PutPolicy, error) {
	const op = "CredentialIssuer.Verify"

	if len(i.secret) == 0 {
		return nil, apperr.E(apperr.CodeConfiguration, op, "signing secret is not configured", nil)
	}

	policy := &PutPolicy{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	parsed, err := parser.ParseWithClaims(token, policy, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, apperr.E(apperr.CodeUnauthorized, op, "invalid upload credential", err)
	}
	if !parsed.Valid || policy.ExpiresAt == nil {
		return nil, apperr.E(apperr.CodeUnauthorized, op, "invalid upload credential", nil)
	}
	if !policy.VerifyExpiresAt(i.now(), true) {
		return nil, apperr.E(apperr.CodeUnauthorized, op, "upload credential expired", jwt.ErrTokenExpired)
	}

	switch {
	case policy.Scope == i.bucket:
	case strings.HasPrefix(policy.Scope, i.bucket+":") && policy.Scope == i.Scope(storageKey):
	default:
		return nil, apperr.E(apperr.CodeForbidden, op, "upload credential does not cover this key", nil)
	}
	return policy, nil
}
