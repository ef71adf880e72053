package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/domain/credential"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

// GormCredentialRepository implements credential.Repository using GORM
type GormCredentialRepository struct {
	db *gorm.DB
}

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// Create inserts a credential. A clashing key/secret pair returns ErrDuplicatePair.
func (r *GormCredentialRepository) Create(ctx context.Context, c *credential.Credential) error {
	var model models.CredentialModel
	model.FromDomain(c)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return credential.ErrDuplicatePair
		}
		return err
	}
	return nil
}

// FindByKey finds a credential by consumer key
func (r *GormCredentialRepository) FindByKey(ctx context.Context, key string) (*credential.Credential, error) {
	var model models.CredentialModel
	if err := r.db.WithContext(ctx).First(&model, "consumer_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, credential.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByID finds a credential by ID
func (r *GormCredentialRepository) FindByID(ctx context.Context, id uuid.UUID) (*credential.Credential, error) {
	var model models.CredentialModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, credential.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns all credentials, newest first
func (r *GormCredentialRepository) List(ctx context.Context) ([]credential.Credential, error) {
	var rows []models.CredentialModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]credential.Credential, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Delete removes a credential
func (r *GormCredentialRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.CredentialModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return credential.ErrNotFound
	}
	return nil
}

// TouchLastUsed updates last_used_at only
func (r *GormCredentialRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.CredentialModel{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", at).Error
}

// isUniqueViolation matches both PostgreSQL (23505) and SQLite unique errors
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

var _ credential.Repository = (*GormCredentialRepository)(nil)
