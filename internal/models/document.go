package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document is a schemaless record addressed by its collection path and id.
// Nested collections use slash separated paths such as "classes/{id}/students".
type Document struct {
	Collection string            `gorm:"size:255;primaryKey" json:"collection"`
	ID         string            `gorm:"size:64;primaryKey" json:"id"`
	Data       datatypes.JSONMap `json:"data"`
	CreatedAt  time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// TableName pins the table used for all collections.
func (Document) TableName() string {
	return "documents"
}
