package gorm

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
// embeddingDims sizes the pgvector column.
func runMigrations(db *gorm.DB, embeddingDims int) error {
	if embeddingDims <= 0 {
		embeddingDims = 1536
	}

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: pgvector extension
		{
			ID: "001_vector_extension",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return nil // shared extension, leave in place
			},
		},

		// Migration 002: CRM core tables
		{
			ID: "002_crm_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Contact{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&Note{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&Tag{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&ContactTag{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("contact_tags", "tags", "notes", "contacts")
			},
		},

		// Migration 003: embedding table + ANN index
		{
			ID: "003_contact_embeddings",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					fmt.Sprintf(`CREATE TABLE IF NOT EXISTS contact_embeddings (
						contact_id text PRIMARY KEY REFERENCES contacts(id) ON DELETE CASCADE,
						user_id text NOT NULL,
						embedding vector(%d),
						fingerprint text NOT NULL,
						source_text text,
						model_version text NOT NULL,
						created_at timestamptz NOT NULL DEFAULT now(),
						updated_at timestamptz NOT NULL DEFAULT now()
					)`, embeddingDims),
					`CREATE INDEX IF NOT EXISTS idx_embeddings_user ON contact_embeddings (user_id)`,
					`CREATE INDEX IF NOT EXISTS idx_embeddings_cosine ON contact_embeddings
						USING hnsw (embedding vector_cosine_ops)`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("contact_embeddings")
			},
		},
	})

	return m.Migrate()
}
