package storage

import (
	"context"
	"errors"
	"strings"

	"kyc-verification-server/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	// ErrStepConflict means the record was no longer at the expected step.
	ErrStepConflict = errors.New("record moved past expected step")
)

type CustomerFilter struct {
	Status  models.KycStatus
	Query   string
	Page    int
	PerPage int
}

// Normalize clamps paging to the dashboard defaults.
func (f *CustomerFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage <= 0 || f.PerPage > 100 {
		f.PerPage = 25
	}
	f.Query = strings.TrimSpace(f.Query)
}

type CustomerStore interface {
	FindByDocument(ctx context.Context, userID uuid.UUID, documentNumber string) (*models.Customer, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	FindOrCreate(ctx context.Context, userID uuid.UUID, documentNumber string) (*models.Customer, error)
	AdvanceStep(ctx context.Context, id uuid.UUID, from models.Step, changes map[string]interface{}) error
	Save(ctx context.Context, c *models.Customer) error
	List(ctx context.Context, filter CustomerFilter) ([]models.Customer, int64, error)
	CountByStatus(ctx context.Context) (map[models.KycStatus]int64, error)
}

type GormCustomerStore struct {
	db *gorm.DB
}

func NewCustomerStore(db *gorm.DB) *GormCustomerStore {
	return &GormCustomerStore{db: db}
}

// FindByDocument returns nil, nil when the user has no record for the number.
func (s *GormCustomerStore) FindByDocument(ctx context.Context, userID uuid.UUID, documentNumber string) (*models.Customer, error) {
	var c models.Customer
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND document_number = ?", userID, documentNumber).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *GormCustomerStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindOrCreate inserts a fresh record unless one already exists for the pair,
// then returns the stored row.
func (s *GormCustomerStore) FindOrCreate(ctx context.Context, userID uuid.UUID, documentNumber string) (*models.Customer, error) {
	fresh := models.Customer{UserID: userID, DocumentNumber: documentNumber}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_number"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&fresh).Error
	if err != nil {
		return nil, err
	}
	c, err := s.FindByDocument(ctx, userID, documentNumber)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrRecordNotFound
	}
	return c, nil
}

// AdvanceStep applies changes only while the record is still at step from.
func (s *GormCustomerStore) AdvanceStep(ctx context.Context, id uuid.UUID, from models.Step, changes map[string]interface{}) error {
	res := s.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ? AND current_step = ?", id, from).
		Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStepConflict
	}
	return nil
}

func (s *GormCustomerStore) Save(ctx context.Context, c *models.Customer) error {
	return s.db.WithContext(ctx).Save(c).Error
}

func (s *GormCustomerStore) List(ctx context.Context, filter CustomerFilter) ([]models.Customer, int64, error) {
	filter.Normalize()
	query := s.db.WithContext(ctx).Model(&models.Customer{})
	if filter.Status != "" {
		query = query.Where("kyc_status IN ?", models.StatusSpellings(filter.Status))
	}
	if filter.Query != "" {
		query = query.Where("lower(document_number) LIKE ?", "%"+strings.ToLower(filter.Query)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var customers []models.Customer
	err := query.Order("created_at DESC").
		Offset((filter.Page - 1) * filter.PerPage).
		Limit(filter.PerPage).
		Find(&customers).Error
	if err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

func (s *GormCustomerStore) CountByStatus(ctx context.Context) (map[models.KycStatus]int64, error) {
	var rows []struct {
		KycStatus models.KycStatus
		Count     int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.Customer{}).
		Select("kyc_status, count(*) as count").
		Group("kyc_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.KycStatus]int64, len(models.KycStatuses))
	for _, st := range models.KycStatuses {
		counts[st] = 0
	}
	for _, r := range rows {
		st, err := models.ParseKycStatus(string(r.KycStatus))
		if err != nil {
			continue
		}
		counts[st] += r.Count
	}
	return counts, nil
}
