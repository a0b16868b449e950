package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"kyc-verification-server/models"
	"kyc-verification-server/storage"
	"kyc-verification-server/utils"

	"github.com/google/uuid"
	"github.com/kataras/golog"
)

// DocumentStore is the storage side of the capture workflow.
type DocumentStore interface {
	DocumentLoader
	DocumentSigner
	Upload(ctx context.Context, data []byte, userID uuid.UUID, kind models.DocumentKind) (string, error)
	Delete(ctx context.Context, ref string) error
}

// NextPage tells the client where the workflow continues.
type NextPage string

const (
	NextInstructions NextPage = "instructions"
	NextCapture      NextPage = "capture"
	NextPreview      NextPage = "preview"
	NextResult       NextPage = "result"
)

const (
	identityDocumentLabel = "AADHAAR"
	addressDocumentLabel  = "Address Proof"
	maxDocumentTypeLength = 64
)

const (
	MsgAddressNeedsEntry = "Please enter your address"
	MsgFrameTooLarge     = "Captured image is too large. Please use a lower camera resolution."
)

type VerifyResult struct {
	DocumentNumber string           `json:"document_number"`
	Next           NextPage         `json:"next"`
	Status         models.KycStatus `json:"kyc_status,omitempty"`
	Step           models.Step      `json:"current_step,omitempty"`
	Reset          bool             `json:"reset"`
}

type ProgressResult struct {
	Customer *models.Customer `json:"customer"`
	Step     models.Step      `json:"current_step"`
}

type CaptureInput struct {
	DocumentNumber string `json:"document_number" validate:"required"`
	Kind           string `json:"kind" validate:"required"`
	Image          string `json:"image" validate:"required"`
	DocumentType   string `json:"document_type"`
}

type CaptureResult struct {
	Path         string        `json:"path"`
	DocumentType string        `json:"document_type,omitempty"`
	Step         models.Step   `json:"current_step"`
	Quality      QualityReport `json:"quality"`
}

type PreviewResult struct {
	Customer  *models.Customer `json:"customer"`
	Extracted ExtractedData    `json:"extracted"`
}

type SubmitInput struct {
	DocumentNumber string `json:"document_number" validate:"required"`
	Address        string `json:"address"`
	Confirmed      bool   `json:"confirmed"`
}

// KycService drives a user's record through verify, capture, preview and
// submit.
type KycService struct {
	customers storage.CustomerStore
	documents DocumentStore
	extractor *Extractor
	notifier  StatusNotifier
	log       *golog.Logger
}

func NewKycService(customers storage.CustomerStore, documents DocumentStore, extractor *Extractor, notifier StatusNotifier, log *golog.Logger) *KycService {
	if log == nil {
		log = golog.Default
	}
	return &KycService{customers: customers, documents: documents, extractor: extractor, notifier: notifier, log: log}
}

func documentNumber(raw string) (string, error) {
	r := utils.ValidateDocumentNumber(raw)
	if !r.Valid {
		return "", invalid("document_number", r.Reason)
	}
	return r.Value, nil
}

func canonicalStatus(s models.KycStatus) models.KycStatus {
	if parsed, err := models.ParseKycStatus(string(s)); err == nil {
		return parsed
	}
	return s
}

func (s *KycService) find(ctx context.Context, userID uuid.UUID, raw string) (*models.Customer, error) {
	doc, err := documentNumber(raw)
	if err != nil {
		return nil, err
	}
	c, err := s.customers.FindByDocument(ctx, userID, doc)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// Verify checks an identifier and decides where the user continues.
// Rejected records are reset so the user can capture again.
func (s *KycService) Verify(ctx context.Context, userID uuid.UUID, raw string) (VerifyResult, error) {
	doc, err := documentNumber(raw)
	if err != nil {
		return VerifyResult{}, err
	}
	c, err := s.customers.FindByDocument(ctx, userID, doc)
	if err != nil {
		return VerifyResult{}, err
	}
	res := VerifyResult{DocumentNumber: doc, Next: NextInstructions}
	if c == nil {
		return res, nil
	}

	res.Status = canonicalStatus(c.KycStatus)
	res.Step = c.CurrentStep
	switch res.Status {
	case models.KycStatusApproved, models.KycStatusInReview, models.KycStatusOnHold:
		res.Next = NextResult
	case models.KycStatusRejected:
		if err := s.resetForResubmission(ctx, c); err != nil {
			return VerifyResult{}, err
		}
		res.Status, res.Step, res.Reset = c.KycStatus, c.CurrentStep, true
	default:
		res.Next = NextCapture
		if c.CurrentStep == models.StepCompleted {
			res.Next = NextPreview
		}
	}
	return res, nil
}

// resetForResubmission clears a rejected record. Old documents are removed
// after the record is saved and failures there are only logged.
func (s *KycService) resetForResubmission(ctx context.Context, c *models.Customer) error {
	old := storage.PathsOf(c)
	from := c.KycStatus
	c.ClearArtifacts()
	c.KycStatus = models.KycStatusPending
	c.KycCompletedAt = nil
	if err := s.customers.Save(ctx, c); err != nil {
		return fmt.Errorf("reset record: %w", err)
	}
	for _, ref := range []string{old.Identity, old.Address, old.Face} {
		if err := s.documents.Delete(ctx, ref); err != nil {
			s.log.Warnf("delete stale document %s: %v", ref, err)
		}
	}
	if err := s.notifier.StatusChanged(ctx, c, from); err != nil {
		s.log.Warnf("notify status change for %s: %v", c.ID, err)
	}
	return nil
}

// Progress returns the step a user resumes at. A user without a record starts
// at the identity step.
func (s *KycService) Progress(ctx context.Context, userID uuid.UUID, raw string) (ProgressResult, error) {
	c, err := s.find(ctx, userID, raw)
	if errors.Is(err, ErrNotFound) {
		return ProgressResult{Step: models.StepIdentity}, nil
	}
	if err != nil {
		return ProgressResult{}, err
	}
	if err := c.CheckConsistency(); err != nil {
		s.log.Warnf("progress: %v", err)
	}
	return ProgressResult{Customer: c, Step: c.CurrentStep}, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	end := 0
	for end < len(s) {
		_, size := utf8.DecodeRuneInString(s[end:])
		if end+size > n {
			break
		}
		end += size
	}
	return s[:end]
}

func documentTypeLabel(kind models.DocumentKind, hint string) string {
	if hint = strings.TrimSpace(hint); hint != "" {
		return truncateUTF8(hint, maxDocumentTypeLength)
	}
	if kind == models.DocumentIdentity {
		return identityDocumentLabel
	}
	return addressDocumentLabel
}

// Capture stores one frame for the record's current step and advances it.
// The step only moves if nobody else advanced it in the meantime.
func (s *KycService) Capture(ctx context.Context, userID uuid.UUID, in CaptureInput) (CaptureResult, error) {
	doc, err := documentNumber(in.DocumentNumber)
	if err != nil {
		return CaptureResult{}, err
	}
	kind, err := models.ParseDocumentKind(in.Kind)
	if err != nil {
		return CaptureResult{}, invalid("kind", err.Error())
	}
	raw, _, err := storage.DecodeDataURL(in.Image)
	if err != nil {
		return CaptureResult{}, invalid("image", "Captured image could not be read")
	}
	frame, report, err := PrepareFrame(raw)
	if errors.Is(err, ErrFrameTooLarge) {
		return CaptureResult{}, invalid("image", MsgFrameTooLarge)
	}
	if errors.Is(err, ErrUnsupportedFrame) {
		return CaptureResult{}, invalid("image", "Captured image could not be read")
	}
	if err != nil {
		return CaptureResult{}, err
	}

	c, err := s.customers.FindByDocument(ctx, userID, doc)
	if err != nil {
		return CaptureResult{}, err
	}
	from := models.StepIdentity
	if c != nil {
		if canonicalStatus(c.KycStatus) != models.KycStatusPending {
			return CaptureResult{}, ErrNotEditable
		}
		from = c.CurrentStep
	}
	if kind.Step() != from {
		return CaptureResult{}, fmt.Errorf("%w: record is at %s, got %s", ErrStepOutOfOrder, from, kind)
	}

	p, err := s.documents.Upload(ctx, frame, userID, kind)
	if err != nil {
		return CaptureResult{}, err
	}

	// the record only comes into existence once its first frame is stored
	if c == nil {
		c, err = s.customers.FindOrCreate(ctx, userID, doc)
		if err != nil {
			s.discardUpload(ctx, p)
			return CaptureResult{}, err
		}
	}

	next := from.Next()
	urlColumn, typeColumn := models.ArtifactColumns(kind)
	changes := map[string]interface{}{urlColumn: p, "current_step": next}
	res := CaptureResult{Path: p, Step: next, Quality: report}
	if typeColumn != "" {
		res.DocumentType = documentTypeLabel(kind, in.DocumentType)
		changes[typeColumn] = res.DocumentType
	}

	if err := s.customers.AdvanceStep(ctx, c.ID, from, changes); err != nil {
		s.discardUpload(ctx, p)
		if errors.Is(err, storage.ErrStepConflict) {
			return CaptureResult{}, fmt.Errorf("%w: record moved past %s", ErrStepOutOfOrder, from)
		}
		return CaptureResult{}, err
	}
	return res, nil
}

func (s *KycService) discardUpload(ctx context.Context, p string) {
	if err := s.documents.Delete(context.WithoutCancel(ctx), p); err != nil {
		s.log.Warnf("remove orphaned upload %s: %v", p, err)
	}
}

// Preview reads both documents and proposes details for the user to confirm.
// Cancelling ctx abandons the OCR passes.
func (s *KycService) Preview(ctx context.Context, userID uuid.UUID, raw string) (PreviewResult, error) {
	c, err := s.find(ctx, userID, raw)
	if err != nil {
		return PreviewResult{}, err
	}
	if c.IdentityDocumentURL == "" || c.AddressDocumentURL == "" {
		return PreviewResult{}, ErrNotReady
	}
	data, err := s.extractor.Extract(ctx, c.IdentityDocumentURL, c.AddressDocumentURL, c.DocumentNumber)
	if err != nil {
		return PreviewResult{}, err
	}
	return PreviewResult{Customer: c, Extracted: data}, nil
}

// Submit sends a fully captured record to review with the confirmed address.
func (s *KycService) Submit(ctx context.Context, userID uuid.UUID, in SubmitInput) (*models.Customer, error) {
	if _, err := documentNumber(in.DocumentNumber); err != nil {
		return nil, err
	}
	if !in.Confirmed {
		return nil, ErrConfirmationRequired
	}
	if IsPlaceholder(in.Address) {
		return nil, invalid("address", MsgAddressNeedsEntry)
	}
	addr := utils.ValidateAddress(in.Address)
	if !addr.Valid {
		return nil, invalid("address", addr.Reason)
	}

	c, err := s.find(ctx, userID, in.DocumentNumber)
	if err != nil {
		return nil, err
	}
	from := canonicalStatus(c.KycStatus)
	if from != models.KycStatusPending {
		return nil, ErrNotEditable
	}
	if c.CurrentStep != models.StepCompleted {
		return nil, ErrNotReady
	}
	if !CanTransition(from, models.KycStatusInReview) {
		return nil, ErrInvalidTransition
	}

	c.Address = addr.Value
	c.KycStatus = models.KycStatusInReview
	if err := s.customers.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("submit record: %w", err)
	}
	if err := s.notifier.StatusChanged(ctx, c, from); err != nil {
		s.log.Warnf("notify status change for %s: %v", c.ID, err)
	}
	return c, nil
}

func (s *KycService) Notifications(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	return s.notifier.List(ctx, userID)
}

func (s *KycService) MarkNotificationsRead(ctx context.Context, userID uuid.UUID, ids []uint) error {
	return s.notifier.MarkRead(ctx, userID, ids)
}
