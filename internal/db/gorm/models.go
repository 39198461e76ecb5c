// Package gorm provides GORM-based database operations for kinship.
package gorm

import (
	"time"

	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// GORM Models

// Contact is a person record. Soft-deleted contacts stay in the table with
// deleted_at set and are excluded from every read path.
type Contact struct {
	ID           string         `gorm:"primaryKey;type:text"`
	UserID       string         `gorm:"index:idx_contacts_user;not null"`
	Name         string         `gorm:"type:text;not null"`
	Organization string         `gorm:"type:text"`
	Role         string         `gorm:"type:text"`
	HowWeMet     string         `gorm:"type:text"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index:idx_contacts_created"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (Contact) TableName() string { return "contacts" }

// BeforeCreate assigns a UUID when the caller didn't set one.
func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Note is a free-text annotation on a contact.
type Note struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	ContactID string    `gorm:"index:idx_notes_contact;not null"`
	UserID    string    `gorm:"index;not null"`
	Body      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_notes_created,sort:desc"`
}

func (Note) TableName() string { return "notes" }

// Tag is a categorical label, unique per user.
type Tag struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	UserID string `gorm:"uniqueIndex:idx_tags_user_name,priority:1;not null"`
	Name   string `gorm:"type:text;uniqueIndex:idx_tags_user_name,priority:2;not null"`
}

func (Tag) TableName() string { return "tags" }

// ContactTag links contacts and tags.
type ContactTag struct {
	ContactID string `gorm:"primaryKey;type:text"`
	TagID     int64  `gorm:"primaryKey"`
}

func (ContactTag) TableName() string { return "contact_tags" }

// ContactEmbedding holds the single current embedding for a contact.
// The primary key on contact_id enforces at-most-one record per contact;
// writes go through upsert only.
type ContactEmbedding struct {
	ContactID    string       `gorm:"primaryKey;type:text;column:contact_id"`
	UserID       string       `gorm:"index:idx_embeddings_user;not null"`
	Embedding    pgvec.Vector `gorm:"column:embedding"`
	Fingerprint  string       `gorm:"type:text;not null"`
	SourceText   string       `gorm:"type:text"`
	ModelVersion string       `gorm:"type:text;not null"`
	CreatedAt    time.Time    `gorm:"autoCreateTime"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime"`
}

func (ContactEmbedding) TableName() string { return "contact_embeddings" }
