package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
	"gorm.io/gorm"
)

// KycStatus is the review state of a customer record.
type KycStatus string

const (
	KycStatusPending  KycStatus = "pending"
	KycStatusInReview KycStatus = "in_review"
	KycStatusApproved KycStatus = "approved"
	KycStatusRejected KycStatus = "rejected"
	KycStatusOnHold   KycStatus = "on_hold"
)

// KycStatuses lists the canonical statuses in dashboard order.
var KycStatuses = []KycStatus{KycStatusPending, KycStatusInReview, KycStatusApproved, KycStatusRejected, KycStatusOnHold}

// legacy spellings written by older clients
var legacyStatuses = map[string]KycStatus{
	"completed": KycStatusApproved,
	"failed":    KycStatusRejected,
}

// ParseKycStatus maps user or legacy input onto the canonical enumeration.
func ParseKycStatus(s string) (KycStatus, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if mapped, ok := legacyStatuses[v]; ok {
		return mapped, nil
	}
	st := KycStatus(v)
	if !slices.Contains(KycStatuses, st) {
		return "", fmt.Errorf("unknown kyc status %q", s)
	}
	return st, nil
}

// StatusSpellings lists every stored spelling of st, legacy ones included.
func StatusSpellings(st KycStatus) []string {
	out := []string{string(st)}
	for legacy, mapped := range legacyStatuses {
		if mapped == st {
			out = append(out, legacy)
		}
	}
	return out
}

// Step is the capture stage a record has reached. Steps only move forward.
type Step string

const (
	StepIdentity  Step = "identity"
	StepAddress   Step = "address"
	StepFace      Step = "face"
	StepCompleted Step = "completed"
)

var stepOrder = []Step{StepIdentity, StepAddress, StepFace, StepCompleted}

// Index returns the position of the step in the capture order, or -1.
func (s Step) Index() int { return slices.Index(stepOrder, s) }

// Next returns the step that follows s. StepCompleted is terminal.
func (s Step) Next() Step {
	i := s.Index()
	if i < 0 || i == len(stepOrder)-1 {
		return StepCompleted
	}
	return stepOrder[i+1]
}

// DocumentKind names a captured artifact. Each kind is captured at the step of
// the same name.
type DocumentKind string

const (
	DocumentIdentity DocumentKind = "identity"
	DocumentAddress  DocumentKind = "address"
	DocumentFace     DocumentKind = "face"
)

func ParseDocumentKind(s string) (DocumentKind, error) {
	switch k := DocumentKind(strings.ToLower(strings.TrimSpace(s))); k {
	case DocumentIdentity, DocumentAddress, DocumentFace:
		return k, nil
	}
	return "", fmt.Errorf("unknown document kind %q", s)
}

// Step returns the capture step at which this kind is accepted.
func (k DocumentKind) Step() Step { return Step(k) }

// Customer is a KYC record, unique per (document_number, user_id).
type Customer struct {
	ID                   uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID               uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_customers_document_user"`
	DocumentNumber       string     `json:"document_number" gorm:"size:10;not null;uniqueIndex:idx_customers_document_user"`
	KycStatus            KycStatus  `json:"kyc_status" gorm:"size:20;not null;default:'pending';index"`
	CurrentStep          Step       `json:"current_step" gorm:"size:20;not null;default:'identity'"`
	IdentityDocumentURL  string     `json:"identity_document_url" gorm:"size:512"`
	IdentityDocumentType string     `json:"identity_document_type" gorm:"size:64"`
	AddressDocumentURL   string     `json:"address_document_url" gorm:"size:512"`
	AddressDocumentType  string     `json:"address_document_type" gorm:"size:64"`
	FaceVideoURL         string     `json:"face_video_url" gorm:"size:512"`
	Address              string     `json:"address" gorm:"type:text"`
	FailureReason        string     `json:"failure_reason" gorm:"type:text"`
	AdminNotes           string     `json:"admin_notes" gorm:"type:text"`
	ReviewedBy           *uuid.UUID `json:"reviewed_by" gorm:"type:uuid;index"`
	ReviewedAt           *time.Time `json:"reviewed_at"`
	KycCompletedAt       *time.Time `json:"kyc_completed_at"`
	CreatedAt            time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.KycStatus == "" {
		c.KycStatus = KycStatusPending
	}
	if c.CurrentStep == "" {
		c.CurrentStep = StepIdentity
	}
	return nil
}

// Artifact returns the stored path for a document kind.
func (c *Customer) Artifact(kind DocumentKind) string {
	switch kind {
	case DocumentIdentity:
		return c.IdentityDocumentURL
	case DocumentAddress:
		return c.AddressDocumentURL
	case DocumentFace:
		return c.FaceVideoURL
	}
	return ""
}

// ArtifactColumns returns the url/type columns written when kind is captured.
func ArtifactColumns(kind DocumentKind) (urlColumn, typeColumn string) {
	switch kind {
	case DocumentIdentity:
		return "identity_document_url", "identity_document_type"
	case DocumentAddress:
		return "address_document_url", "address_document_type"
	}
	return "face_video_url", ""
}

// InferredStep derives a step from which artifacts exist. Only used to
// cross-check CurrentStep.
func (c *Customer) InferredStep() Step {
	switch {
	case c.IdentityDocumentURL == "":
		return StepIdentity
	case c.AddressDocumentURL == "":
		return StepAddress
	case c.FaceVideoURL == "":
		return StepFace
	}
	return StepCompleted
}

// CheckConsistency reports a mismatch between CurrentStep and the artifacts
// present on the record.
func (c *Customer) CheckConsistency() error {
	if inferred := c.InferredStep(); inferred != c.CurrentStep {
		return fmt.Errorf("record %s: current_step %q but artifacts imply %q", c.ID, c.CurrentStep, inferred)
	}
	return nil
}

// ClearArtifacts drops every captured artifact and rewinds the record to the
// first step.
func (c *Customer) ClearArtifacts() {
	c.IdentityDocumentURL = ""
	c.IdentityDocumentType = ""
	c.AddressDocumentURL = ""
	c.AddressDocumentType = ""
	c.FaceVideoURL = ""
	c.CurrentStep = StepIdentity
}
