package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kyc-verification-server/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BucketName is the default bucket holding captured KYC documents.
const BucketName = "kyc-documents"

const documentContentType = "image/jpeg"

// maxRemoteDocument caps how much is read when loading an http(s) document.
const maxRemoteDocument = 20 << 20

var ErrInvalidDataURL = errors.New("invalid data url")

// DocumentPaths are the three artifact references of one record.
type DocumentPaths struct {
	Identity string
	Address  string
	Face     string
}

// DocumentURLs are the retrievable URLs matching DocumentPaths.
type DocumentURLs struct {
	Identity string `json:"identity_document_url"`
	Address  string `json:"address_document_url"`
	Face     string `json:"face_video_url"`
}

// PathsOf collects the artifact references of a customer.
func PathsOf(c *models.Customer) DocumentPaths {
	return DocumentPaths{
		Identity: c.IdentityDocumentURL,
		Address:  c.AddressDocumentURL,
		Face:     c.FaceVideoURL,
	}
}

// Documents stores captured frames and hands out signed URLs for them.
type Documents struct {
	store  ObjectStore
	signer *URLSigner
	client *http.Client
	now    func() time.Time
}

func NewDocuments(store ObjectStore, signer *URLSigner) *Documents {
	return &Documents{
		store:  store,
		signer: signer,
		client: &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}
}

func IsDataURL(ref string) bool { return strings.HasPrefix(ref, "data:") }

// DecodeDataURL splits a base64 data URL into its bytes and mime type.
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	if !IsDataURL(dataURL) {
		return nil, "", ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, "", ErrInvalidDataURL
	}
	mimeType := strings.TrimSuffix(meta, ";base64")
	if mimeType == "" {
		mimeType = "text/plain"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	if len(data) == 0 {
		return nil, "", ErrInvalidDataURL
	}
	return data, mimeType, nil
}

// ObjectPath is the bucket path for a capture of kind made at now.
func ObjectPath(userID uuid.UUID, kind models.DocumentKind, now time.Time) string {
	return fmt.Sprintf("%s/%s_%d.jpg", userID, kind, now.UnixMilli())
}

// Upload stores a JPEG frame and returns its bucket path.
func (d *Documents) Upload(ctx context.Context, data []byte, userID uuid.UUID, kind models.DocumentKind) (string, error) {
	p := ObjectPath(userID, kind, d.now())
	if err := d.store.Put(ctx, p, data, documentContentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", kind, err)
	}
	return p, nil
}

// SignedURL resolves a stored reference to a retrievable URL. Empty references
// stay empty and data URLs are returned unchanged.
func (d *Documents) SignedURL(ctx context.Context, ref string) (string, error) {
	if ref == "" || IsDataURL(ref) {
		return ref, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.signer.Sign(ref)
}

// SignedURLs resolves all three references concurrently. Any failure fails
// the whole batch.
func (d *Documents) SignedURLs(ctx context.Context, paths DocumentPaths) (DocumentURLs, error) {
	var urls DocumentURLs
	g, gctx := errgroup.WithContext(ctx)
	for _, pair := range []struct {
		ref string
		dst *string
	}{
		{paths.Identity, &urls.Identity},
		{paths.Address, &urls.Address},
		{paths.Face, &urls.Face},
	} {
		pair := pair
		g.Go(func() error {
			u, err := d.SignedURL(gctx, pair.ref)
			if err != nil {
				return err
			}
			*pair.dst = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DocumentURLs{}, err
	}
	return urls, nil
}

// Delete removes a stored document. Empty and data URL references are ignored.
func (d *Documents) Delete(ctx context.Context, ref string) error {
	if ref == "" || IsDataURL(ref) {
		return nil
	}
	return d.store.Delete(ctx, ref)
}

// Load returns the bytes behind a reference: a data URL, an http(s) URL or a
// bucket path.
func (d *Documents) Load(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case ref == "":
		return nil, ErrObjectNotFound
	case IsDataURL(ref):
		data, _, err := DecodeDataURL(ref)
		return data, err
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return d.fetch(ctx, ref)
	}
	data, _, err := d.store.Get(ctx, ref)
	return data, err
}

func (d *Documents) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch document: status %d", res.StatusCode)
	}
	return io.ReadAll(io.LimitReader(res.Body, maxRemoteDocument))
}

// Store exposes the underlying object store for callers that write other
// object kinds, such as exports.
func (d *Documents) Store() ObjectStore { return d.store }

// Signer exposes the URL signer used for retrieval URLs.
func (d *Documents) Signer() *URLSigner { return d.signer }
