// Package gorm is the PostgreSQL persistence layer for kinship.
//
// It owns schema migrations (including the pgvector extension and the
// contact_embeddings table), the contact read surface the embedding
// pipeline composes profiles from, and the vector store queried by
// semantic search.
//
// Database tests are gated on KINSHIP_TEST_DATABASE_URL:
//
//	KINSHIP_TEST_DATABASE_URL=postgres://localhost/kinship_test go test ./internal/db/gorm
package gorm
