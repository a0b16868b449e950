package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kyc-verification-server/models"
	"kyc-verification-server/storage"
	"kyc-verification-server/utils"

	"github.com/google/uuid"
	"github.com/kataras/golog"
	"golang.org/x/exp/slices"
)

const MsgReasonRequired = "Please provide a reason for rejection."

// transitions lists the statuses reachable from each status. Saving a record
// without changing its status is always allowed.
var transitions = map[models.KycStatus][]models.KycStatus{
	models.KycStatusPending:  {models.KycStatusInReview, models.KycStatusOnHold, models.KycStatusRejected},
	models.KycStatusInReview: {models.KycStatusApproved, models.KycStatusRejected, models.KycStatusOnHold, models.KycStatusPending},
	models.KycStatusOnHold:   {models.KycStatusInReview, models.KycStatusRejected, models.KycStatusPending},
	models.KycStatusRejected: {models.KycStatusInReview, models.KycStatusPending},
	models.KycStatusApproved: {models.KycStatusOnHold},
}

func CanTransition(from, to models.KycStatus) bool {
	return from == to || slices.Contains(transitions[from], to)
}

// AllowedTransitions returns the statuses an admin may pick for a record in
// status from, including from itself.
func AllowedTransitions(from models.KycStatus) []models.KycStatus {
	from = canonicalStatus(from)
	return append([]models.KycStatus{from}, transitions[from]...)
}

type ReviewInput struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"admin_notes"`
	Reason string `json:"failure_reason"`
}

// ApplyReview moves c to the requested status and stamps the reviewer. c is
// left untouched when an error is returned.
func ApplyReview(c *models.Customer, reviewer uuid.UUID, in ReviewInput, now time.Time) error {
	to, err := models.ParseKycStatus(in.Status)
	if err != nil {
		return invalid("status", err.Error())
	}
	notes := utils.ValidateNotes(in.Notes)
	if !notes.Valid {
		return invalid("admin_notes", notes.Reason)
	}
	reason := utils.ValidateReason(strings.TrimSpace(in.Reason))
	if !reason.Valid {
		return invalid("failure_reason", reason.Reason)
	}

	from := c.KycStatus
	if parsed, err := models.ParseKycStatus(string(from)); err == nil {
		from = parsed
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}

	switch to {
	case models.KycStatusRejected:
		if reason.Value == "" {
			return invalid("failure_reason", MsgReasonRequired)
		}
		c.FailureReason = reason.Value
	case models.KycStatusApproved:
		if c.CurrentStep != models.StepCompleted {
			return ErrNotReady
		}
		completed := now
		c.KycCompletedAt = &completed
		c.FailureReason = ""
	}

	c.KycStatus = to
	c.AdminNotes = notes.Value
	reviewedBy := reviewer
	reviewedAt := now
	c.ReviewedBy = &reviewedBy
	c.ReviewedAt = &reviewedAt
	return nil
}

// ReviewDetail is a record with retrieval URLs for its artifacts. URLs is nil
// when signing failed.
type ReviewDetail struct {
	Customer    *models.Customer     `json:"customer"`
	URLs        *storage.DocumentURLs `json:"urls"`
	Transitions []models.KycStatus    `json:"allowed_transitions"`
}

type ReviewStats struct {
	Total    int64                      `json:"total"`
	ByStatus map[models.KycStatus]int64 `json:"by_status"`
}

type DocumentSigner interface {
	SignedURLs(ctx context.Context, paths storage.DocumentPaths) (storage.DocumentURLs, error)
}

// ReviewService backs the admin dashboard.
type ReviewService struct {
	customers storage.CustomerStore
	signer    DocumentSigner
	notifier  StatusNotifier
	log       *golog.Logger
	now       func() time.Time
}

func NewReviewService(customers storage.CustomerStore, signer DocumentSigner, notifier StatusNotifier, log *golog.Logger) *ReviewService {
	if log == nil {
		log = golog.Default
	}
	return &ReviewService{customers: customers, signer: signer, notifier: notifier, log: log, now: time.Now}
}

func (s *ReviewService) List(ctx context.Context, filter storage.CustomerFilter) ([]models.Customer, int64, error) {
	return s.customers.List(ctx, filter)
}

func (s *ReviewService) Stats(ctx context.Context) (ReviewStats, error) {
	counts, err := s.customers.CountByStatus(ctx)
	if err != nil {
		return ReviewStats{}, err
	}
	stats := ReviewStats{ByStatus: counts}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func (s *ReviewService) find(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	c, err := s.customers.FindByID(ctx, id)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return c, err
}

// Get loads a record and signs its artifact URLs. A signing failure is logged
// and leaves URLs nil.
func (s *ReviewService) Get(ctx context.Context, id uuid.UUID) (ReviewDetail, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return ReviewDetail{}, err
	}
	detail := ReviewDetail{Customer: c, Transitions: AllowedTransitions(c.KycStatus)}
	urls, err := s.signer.SignedURLs(ctx, storage.PathsOf(c))
	if err != nil {
		s.log.Warnf("sign document urls for %s: %v", c.ID, err)
		return detail, nil
	}
	detail.URLs = &urls
	return detail, nil
}

// Review applies an admin decision and returns the record before and after
// the change.
func (s *ReviewService) Review(ctx context.Context, id, reviewer uuid.UUID, in ReviewInput) (before, after models.Customer, err error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return before, after, err
	}
	before = *c
	if err := ApplyReview(c, reviewer, in, s.now()); err != nil {
		return before, after, err
	}
	if err := s.customers.Save(ctx, c); err != nil {
		return before, after, fmt.Errorf("save review: %w", err)
	}
	if c.KycStatus != before.KycStatus {
		if err := s.notifier.StatusChanged(ctx, c, before.KycStatus); err != nil {
			s.log.Warnf("notify status change for %s: %v", c.ID, err)
		}
	}
	return before, *c, nil
}
