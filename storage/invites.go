package storage

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"kyc-verification-server/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInviteInvalid = errors.New("invite code is invalid or expired")

const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NormalizeInviteCode trims and upper-cases a user supplied code.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateInviteCode returns a random code of n characters.
func GenerateInviteCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(buf), nil
}

type InviteStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewInviteStore(db *gorm.DB) *InviteStore {
	return &InviteStore{db: db, now: time.Now}
}

// Validate reports whether code exists and can still be redeemed.
func (s *InviteStore) Validate(ctx context.Context, code string) (bool, error) {
	var invite models.InviteCode
	err := s.db.WithContext(ctx).Where("code = ?", NormalizeInviteCode(code)).First(&invite).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return invite.Usable(s.now()), nil
}

// AssignAdminRole redeems code and promotes the user in one transaction.
func (s *InviteStore) AssignAdminRole(ctx context.Context, userID uuid.UUID, code string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invite models.InviteCode
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", NormalizeInviteCode(code)).
			First(&invite).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInviteInvalid
		}
		if err != nil {
			return err
		}
		if !invite.Usable(s.now()) {
			return ErrInviteInvalid
		}
		if err := tx.Model(&invite).Update("uses", gorm.Expr("uses + 1")).Error; err != nil {
			return err
		}
		res := tx.Model(&models.User{}).Where("id = ?", userID).Update("role", models.RoleAdmin)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
}

// Create stores a new invite code. An empty Code is generated.
func (s *InviteStore) Create(ctx context.Context, invite *models.InviteCode) error {
	if invite.Code == "" {
		code, err := GenerateInviteCode(10)
		if err != nil {
			return err
		}
		invite.Code = code
	}
	invite.Code = NormalizeInviteCode(invite.Code)
	if invite.MaxUses <= 0 {
		invite.MaxUses = 1
	}
	return s.db.WithContext(ctx).Create(invite).Error
}
