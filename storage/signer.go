package storage

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kataras/iris/v12/middleware/jwt"
)

// SignedURLTTL is how long an issued retrieval URL stays valid.
const SignedURLTTL = time.Hour

// ObjectRoute is the path that serves signed object URLs.
const ObjectRoute = "/api/storage/object"

var ErrSignatureBucket = errors.New("signed url issued for another bucket")

type ObjectClaims struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
}

// URLSigner issues and verifies time-limited retrieval URLs for one bucket.
type URLSigner struct {
	signer   *jwt.Signer
	verifier *jwt.Verifier
	baseURL  string
	bucket   string
}

func NewURLSigner(secret []byte, baseURL, bucket string, ttl time.Duration) *URLSigner {
	return &URLSigner{
		signer:   jwt.NewSigner(jwt.HS256, secret, ttl),
		verifier: jwt.NewVerifier(jwt.HS256, secret),
		baseURL:  baseURL,
		bucket:   bucket,
	}
}

// Sign returns a URL that serves the object at p until the TTL elapses.
func (s *URLSigner) Sign(p string) (string, error) {
	cleaned, err := CleanObjectPath(p)
	if err != nil {
		return "", err
	}
	token, err := s.signer.Sign(ObjectClaims{Bucket: s.bucket, Path: cleaned})
	if err != nil {
		return "", fmt.Errorf("sign object url: %w", err)
	}
	return s.baseURL + ObjectRoute + "?token=" + url.QueryEscape(string(token)), nil
}

// Verify checks signature and expiry and returns the object the token grants.
func (s *URLSigner) Verify(token string) (ObjectClaims, error) {
	var claims ObjectClaims
	verified, err := s.verifier.VerifyToken([]byte(token))
	if err != nil {
		return claims, err
	}
	if err := verified.Claims(&claims); err != nil {
		return claims, err
	}
	if claims.Bucket != s.bucket {
		return claims, ErrSignatureBucket
	}
	return claims, nil
}
