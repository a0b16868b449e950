package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"kyc-verification-server/models"
	"kyc-verification-server/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"
)

type fakeCustomers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Customer
	// beforeAdvance runs inside AdvanceStep before the step check.
	beforeAdvance func(c *models.Customer)
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{byID: map[uuid.UUID]*models.Customer{}}
}

func (f *fakeCustomers) put(c models.Customer) *models.Customer {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = c.BeforeCreate(nil)
	f.byID[c.ID] = &c
	cp := c
	return &cp
}

func (f *fakeCustomers) get(id uuid.UUID) models.Customer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

func (f *fakeCustomers) FindByDocument(ctx context.Context, userID uuid.UUID, doc string) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.UserID == userID && c.DocumentNumber == doc {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeCustomers) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCustomers) FindOrCreate(ctx context.Context, userID uuid.UUID, doc string) (*models.Customer, error) {
	if c, _ := f.FindByDocument(ctx, userID, doc); c != nil {
		return c, nil
	}
	return f.put(models.Customer{UserID: userID, DocumentNumber: doc}), nil
}

func (f *fakeCustomers) AdvanceStep(ctx context.Context, id uuid.UUID, from models.Step, changes map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return storage.ErrRecordNotFound
	}
	if f.beforeAdvance != nil {
		f.beforeAdvance(c)
	}
	if c.CurrentStep != from {
		return storage.ErrStepConflict
	}
	for k, v := range changes {
		switch k {
		case "identity_document_url":
			c.IdentityDocumentURL = v.(string)
		case "identity_document_type":
			c.IdentityDocumentType = v.(string)
		case "address_document_url":
			c.AddressDocumentURL = v.(string)
		case "address_document_type":
			c.AddressDocumentType = v.(string)
		case "face_video_url":
			c.FaceVideoURL = v.(string)
		case "current_step":
			c.CurrentStep = v.(models.Step)
		default:
			return fmt.Errorf("unexpected column %s", k)
		}
	}
	return nil
}

func (f *fakeCustomers) Save(ctx context.Context, c *models.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.byID[c.ID] = &cp
	return nil
}

func (f *fakeCustomers) List(ctx context.Context, filter storage.CustomerFilter) ([]models.Customer, int64, error) {
	filter.Normalize()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Customer
	for _, c := range f.byID {
		if filter.Status != "" && !slices.Contains(models.StatusSpellings(filter.Status), string(c.KycStatus)) {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(c.DocumentNumber), strings.ToLower(filter.Query)) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentNumber < out[j].DocumentNumber })
	return out, int64(len(out)), nil
}

func (f *fakeCustomers) CountByStatus(ctx context.Context) (map[models.KycStatus]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[models.KycStatus]int64{}
	for _, c := range f.byID {
		counts[canonicalStatus(c.KycStatus)]++
	}
	return counts, nil
}

type fakeDocuments struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	seq       int64
	signErr   error
	uploadErr error
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{objects: map[string][]byte{}}
}

func (d *fakeDocuments) Upload(ctx context.Context, data []byte, userID uuid.UUID, kind models.DocumentKind) (string, error) {
	if d.uploadErr != nil {
		return "", d.uploadErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	p := storage.ObjectPath(userID, kind, time.UnixMilli(d.seq))
	d.objects[p] = data
	return p, nil
}

func (d *fakeDocuments) Delete(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objects, ref)
	d.deleted = append(d.deleted, ref)
	return nil
}

func (d *fakeDocuments) Load(ctx context.Context, ref string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.objects[ref]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (d *fakeDocuments) SignedURLs(ctx context.Context, paths storage.DocumentPaths) (storage.DocumentURLs, error) {
	if d.signErr != nil {
		return storage.DocumentURLs{}, d.signErr
	}
	sign := func(p string) string {
		if p == "" {
			return ""
		}
		return "signed://" + p
	}
	return storage.DocumentURLs{Identity: sign(paths.Identity), Address: sign(paths.Address), Face: sign(paths.Face)}, nil
}

func (d *fakeDocuments) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.objects)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (n *fakeNotifier) StatusChanged(ctx context.Context, c *models.Customer, from models.KycStatus) error {
	if c.KycStatus == from {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, NotificationFor(c, from))
	return nil
}

func (n *fakeNotifier) List(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Notification
	for _, x := range n.sent {
		if x.UserID == userID {
			out = append(out, x)
		}
	}
	return out, nil
}

func (n *fakeNotifier) MarkRead(ctx context.Context, userID uuid.UUID, ids []uint) error { return nil }

// grayPNG encodes a one-row image whose pixels have the given gray levels.
func grayPNG(t *testing.T, levels ...uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, len(levels), 1))
	for x, v := range levels {
		img.Set(x, 0, color.RGBA{R: v, G: v, B: v, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// goodFrame passes the quality gate: mean 120, variance 500.
func goodFrame(t *testing.T) string {
	return dataURL("image/png", grayPNG(t, 95, 95, 95, 95, 145, 145, 145, 145, 120, 120))
}

func blurryFrame(t *testing.T) string {
	return dataURL("image/png", grayPNG(t, 128, 128, 128, 128))
}
