package repository

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-homework-api/internal/models"
)

// DocumentFilter restricts a listing to documents whose field equals value.
type DocumentFilter struct {
	Field string
	Value string
}

// DocumentRepository defines persistence operations for schemaless documents.
type DocumentRepository interface {
	Create(ctx context.Context, document *models.Document) error
	Get(ctx context.Context, collection, id string) (models.Document, error)
	List(ctx context.Context, collection string, filters ...DocumentFilter) ([]models.Document, error)
	Upsert(ctx context.Context, document *models.Document) error
	Delete(ctx context.Context, collection, id string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository instantiates a GORM-backed repository.
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, document *models.Document) error {
	return r.db.WithContext(ctx).Create(document).Error
}

func (r *documentRepository) Get(ctx context.Context, collection, id string) (models.Document, error) {
	var document models.Document
	if err := r.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&document).Error; err != nil {
		return models.Document{}, err
	}

	return document, nil
}

func (r *documentRepository) List(ctx context.Context, collection string, filters ...DocumentFilter) ([]models.Document, error) {
	query := r.db.WithContext(ctx).Where("collection = ?", collection)
	for _, filter := range filters {
		query = query.Where(datatypes.JSONQuery("data").Equals(filter.Value, filter.Field))
	}

	var documents []models.Document
	if err := query.Order("created_at ASC").Order("id ASC").Find(&documents).Error; err != nil {
		return nil, err
	}

	return documents, nil
}

func (r *documentRepository) Upsert(ctx context.Context, document *models.Document) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(document).Error
}

func (r *documentRepository) Delete(ctx context.Context, collection, id string) error {
	result := r.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&models.Document{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
