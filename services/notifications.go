package services

import (
	"context"
	"fmt"

	"kyc-verification-server/models"

	"github.com/google/uuid"
	"github.com/kataras/golog"
	"gorm.io/gorm"
)

// StatusNotifier records status changes for the owner of a KYC record.
type StatusNotifier interface {
	StatusChanged(ctx context.Context, c *models.Customer, from models.KycStatus) error
	List(ctx context.Context, userID uuid.UUID) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uint) error
}

var statusTitles = map[models.KycStatus]string{
	models.KycStatusPending:  "Verification reopened",
	models.KycStatusInReview: "Verification under review",
	models.KycStatusApproved: "Verification approved",
	models.KycStatusRejected: "Verification rejected",
	models.KycStatusOnHold:   "Verification on hold",
}

// NotificationFor builds the notification sent when c moved away from from.
func NotificationFor(c *models.Customer, from models.KycStatus) models.Notification {
	body := fmt.Sprintf("Your KYC verification for %s moved from %s to %s.", c.DocumentNumber, from, c.KycStatus)
	if c.KycStatus == models.KycStatusRejected && c.FailureReason != "" {
		body += " Reason: " + c.FailureReason
	}
	return models.Notification{
		UserID:     c.UserID,
		CustomerID: c.ID,
		Status:     c.KycStatus,
		Title:      statusTitles[c.KycStatus],
		Body:       body,
	}
}

// NotificationService stores notifications in the notifications table.
type NotificationService struct {
	db  *gorm.DB
	log *golog.Logger
}

func NewNotificationService(db *gorm.DB, log *golog.Logger) *NotificationService {
	if log == nil {
		log = golog.Default
	}
	return &NotificationService{db: db, log: log}
}

func (ns *NotificationService) StatusChanged(ctx context.Context, c *models.Customer, from models.KycStatus) error {
	if c.KycStatus == from {
		return nil
	}
	n := NotificationFor(c, from)
	if err := ns.db.WithContext(ctx).Create(&n).Error; err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	ns.log.Debugf("notified user %s: record %s is %s", c.UserID, c.ID, c.KycStatus)
	return nil
}

func (ns *NotificationService) List(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	var out []models.Notification
	err := ns.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(100).
		Find(&out).Error
	return out, err
}

// MarkRead flags the given notifications of userID as read.
func (ns *NotificationService) MarkRead(ctx context.Context, userID uuid.UUID, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return ns.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Update("read", true).Error
}
