package routes

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kyc-verification-server/models"
	"kyc-verification-server/ocr"
	"kyc-verification-server/services"
	"kyc-verification-server/storage"
	"kyc-verification-server/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "testsecret"

type memCustomers struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Customer
}

func newMemCustomers() *memCustomers { return &memCustomers{rows: map[uuid.UUID]models.Customer{}} }

func (m *memCustomers) add(c models.Customer) models.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = c.BeforeCreate(nil)
	m.rows[c.ID] = c
	return c
}

func (m *memCustomers) FindByDocument(ctx context.Context, userID uuid.UUID, doc string) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.UserID == userID && c.DocumentNumber == doc {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memCustomers) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	return &c, nil
}

func (m *memCustomers) FindOrCreate(ctx context.Context, userID uuid.UUID, doc string) (*models.Customer, error) {
	if c, _ := m.FindByDocument(ctx, userID, doc); c != nil {
		return c, nil
	}
	c := m.add(models.Customer{UserID: userID, DocumentNumber: doc})
	return &c, nil
}

func (m *memCustomers) AdvanceStep(ctx context.Context, id uuid.UUID, from models.Step, changes map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.CurrentStep != from {
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
		}
	}
	m.rows[id] = c
	return nil
}

func (m *memCustomers) Save(ctx context.Context, c *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[c.ID] = *c
	return nil
}

func (m *memCustomers) List(ctx context.Context, f storage.CustomerFilter) ([]models.Customer, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Customer
	for _, c := range m.rows {
		if f.Status != "" && !slices.Contains(models.StatusSpellings(f.Status), string(c.KycStatus)) {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(c.DocumentNumber), strings.ToLower(f.Query)) {
			continue
		}
		out = append(out, c)
	}
	return out, int64(len(out)), nil
}

func (m *memCustomers) CountByStatus(ctx context.Context) (map[models.KycStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[models.KycStatus]int64{}
	for _, c := range m.rows {
		st, err := models.ParseKycStatus(string(c.KycStatus))
		if err != nil {
			continue
		}
		counts[st]++
	}
	return counts, nil
}

type nopNotifier struct{}

func (nopNotifier) StatusChanged(context.Context, *models.Customer, models.KycStatus) error { return nil }
func (nopNotifier) List(context.Context, uuid.UUID) ([]models.Notification, error)        { return nil, nil }
func (nopNotifier) MarkRead(context.Context, uuid.UUID, []uint) error                     { return nil }

type testEnv struct {
	app       *iris.Application
	customers *memCustomers
	objects   *storage.DiskStore
	signer    *storage.URLSigner
}

// newTestEnv wires the KYC, admin and storage routes over in-memory stores.
func newTestEnv(t *testing.T, ocrText map[string]string) *testEnv {
	t.Helper()
	utils.ConfigureTokens(testSecret, testSecret+"-refresh")

	customers := newMemCustomers()
	objects, err := storage.NewDiskStore(t.TempDir(), storage.BucketName)
	require.NoError(t, err)
	signer := storage.NewURLSigner([]byte("storage-secret"), "http://example.test", storage.BucketName, time.Hour)
	documents := storage.NewDocuments(objects, signer)

	engine := ocr.EngineFunc(func(ctx context.Context, in ocr.Input) (ocr.Result, error) {
		return ocr.Result{InputID: in.ID, PlainText: ocrText[in.ID]}, nil
	})
	extractor := services.NewExtractor(engine, documents, nil, nil)
	kyc := services.NewKycService(customers, documents, extractor, nopNotifier{}, nil)
	review := services.NewReviewService(customers, documents, nopNotifier{}, nil)
	exports := services.NewExportService(customers, objects, signer, nil)

	app := iris.New()
	app.Validator = validator.New()
	verifier := jwt.NewVerifier(jwt.HS256, utils.AccessTokenSecret())
	verify := verifier.Verify(func() interface{} { return new(utils.AccessToken) })

	NewKycRoutes(kyc).Register(app.Party("/api/kyc", verify, utils.UserIDFromTokenMiddleware))
	admin := app.Party("/api/admin", verify, utils.AdminOnlyMiddleware)
	NewAdminKycRoutes(review, exports).Register(admin)
	admin.Get("/activity", AdminActivity)
	admin.Get("/users", AdminListUsers)
	admin.Get("/users/{id:uuid}", AdminGetUser)
	app.Get(storage.ObjectRoute, NewStorageRoutes(signer, objects).Object)
	require.NoError(t, app.Build())

	return &testEnv{app: app, customers: customers, objects: objects, signer: signer}
}

// useTestDB points the package-level database at a migrated sqlite file for
// the handlers that query it directly.
func useTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "kyc.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, storage.Migrate(db))

	previous := storage.DB
	storage.DB = db
	t.Cleanup(func() {
		storage.DB = previous
		sqlDB.Close()
	})
	return db
}

func signTestToken(t *testing.T, id uuid.UUID, role string) string {
	t.Helper()
	signer := jwt.NewSigner(jwt.HS256, []byte(testSecret), time.Hour)
	token, err := signer.Sign(utils.AccessToken{ID: id.String(), Role: role})
	require.NoError(t, err)
	return string(token)
}

func (e *testEnv) do(method, target, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	e.app.ServeHTTP(resp, req)
	return resp
}

// sharpFrame is a PNG data URL that passes the quality gate.
func sharpFrame(t *testing.T) string {
	return pngFrame(t, 95, 95, 95, 95, 145, 145, 145, 145, 120, 120)
}

// pngFrame encodes one row of gray levels as a PNG data URL.
func pngFrame(t *testing.T, levels ...uint8) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, len(levels), 1))
	for x, v := range levels {
		img.Set(x, 0, color.RGBA{R: v, G: v, B: v, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
