package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-homework-api/internal/models"
)

// CredentialRepository persists sign-in credentials.
type CredentialRepository interface {
	Create(ctx context.Context, credential *models.Credential) error
	GetByEmail(ctx context.Context, email string) (models.Credential, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type credentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository constructs a credential repository.
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) Create(ctx context.Context, credential *models.Credential) error {
	credential.Email = normalizeEmail(credential.Email)
	return r.db.WithContext(ctx).Create(credential).Error
}

func (r *credentialRepository) GetByEmail(ctx context.Context, email string) (models.Credential, error) {
	var credential models.Credential
	if err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&credential).Error; err != nil {
		return models.Credential{}, err
	}
	return credential, nil
}

func (r *credentialRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Credential{}).
		Where("email = ?", normalizeEmail(email)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
