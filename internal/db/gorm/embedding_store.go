package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kinshiphq/kinship/internal/profile"
	"github.com/kinshiphq/kinship/pkg/models"
)

// EmbeddingStore persists one current vector per contact and serves
// similarity queries.
type EmbeddingStore struct {
	store *Store
	db    *gorm.DB
	rawDB *sql.DB
}

// NewEmbeddingStore creates a new embedding store.
func NewEmbeddingStore(store *Store) *EmbeddingStore {
	return &EmbeddingStore{
		store: store,
		db:    store.DB,
		rawDB: store.GetRawDB(),
	}
}

// GetStored returns the fingerprint and model version of the contact's
// current embedding, or nil when none exists.
func (s *EmbeddingStore) GetStored(ctx context.Context, contactID string) (*profile.StoredEmbedding, error) {
	var row ContactEmbedding
	err := s.db.WithContext(ctx).
		Select("fingerprint", "model_version").
		Where("contact_id = ?", contactID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stored embedding for %s: %w", contactID, err)
	}
	return &profile.StoredEmbedding{
		Fingerprint:  row.Fingerprint,
		ModelVersion: row.ModelVersion,
	}, nil
}

// Upsert inserts or replaces the embedding for a contact, keyed by contact
// id. Exactly one record per contact exists after return. The returned
// created flag distinguishes insert from replace for batch accounting.
// userID must match the owning contact's user id.
func (s *EmbeddingStore) Upsert(ctx context.Context, contactID, userID string, vector []float32, fingerprint, sourceText, modelVersion string) (created bool, err error) {
	// Scope invariant is checked at write time, not just inherited.
	var owner Contact
	err = s.db.WithContext(ctx).
		Unscoped().
		Select("user_id").
		Where("id = ?", contactID).
		First(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("upsert embedding: contact %s does not exist", contactID)
	}
	if err != nil {
		return false, fmt.Errorf("upsert embedding: lookup contact %s: %w", contactID, err)
	}
	if owner.UserID != userID {
		return false, fmt.Errorf("upsert embedding: scope %s does not own contact %s", userID, contactID)
	}

	var existing int64
	err = s.db.WithContext(ctx).
		Model(&ContactEmbedding{}).
		Where("contact_id = ?", contactID).
		Count(&existing).Error
	if err != nil {
		return false, fmt.Errorf("upsert embedding: check existing for %s: %w", contactID, err)
	}

	row := &ContactEmbedding{
		ContactID:    contactID,
		UserID:       userID,
		Embedding:    pgvec.NewVector(vector),
		Fingerprint:  fingerprint,
		SourceText:   sourceText,
		ModelVersion: modelVersion,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "contact_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"embedding", "fingerprint", "source_text", "model_version", "updated_at",
			}),
		}).
		Create(row).Error
	if err != nil {
		return false, fmt.Errorf("upsert embedding for %s: %w", contactID, err)
	}

	return existing == 0, nil
}

// FindSimilar returns contacts of userID ranked by cosine similarity to
// queryVec. Soft-deleted contacts and matches below threshold are excluded.
// Ordering is similarity descending with contact id ascending as the stable
// tie-break. Similarity is 1 - cosine_distance and is not hard-clamped.
func (s *EmbeddingStore) FindSimilar(ctx context.Context, userID string, queryVec []float32, limit int, threshold float64) ([]models.SimilarityMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	queryCtx, cancel := s.store.WithTimeout(ctx, SlowQueryTimeout, "find_similar")
	defer cancel()

	const q = `
		SELECT e.contact_id, c.name, c.organization, c.role,
		       1 - (e.embedding <=> $1) AS similarity
		FROM contact_embeddings e
		JOIN contacts c ON c.id = e.contact_id
		WHERE e.user_id = $2
		  AND c.deleted_at IS NULL
		  AND 1 - (e.embedding <=> $1) >= $3
		ORDER BY similarity DESC, e.contact_id ASC
		LIMIT $4`

	rows, err := s.rawDB.QueryContext(queryCtx, q, pgvec.NewVector(queryVec), userID, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("query similar contacts: %w", err)
	}
	defer rows.Close()

	var matches []models.SimilarityMatch
	for rows.Next() {
		var m models.SimilarityMatch
		if err := rows.Scan(&m.ContactID, &m.Name, &m.Organization, &m.Role, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Stats reports embedding coverage for a user's contacts.
type Stats struct {
	Contacts   int64 `json:"contacts"`
	Embedded   int64 `json:"embedded"`
	StaleModel int64 `json:"stale_model"`
}

// GetStats returns embedding coverage counters for userID. StaleModel counts
// embeddings produced by a model other than modelVersion; the next sweep
// regenerates them.
func (s *EmbeddingStore) GetStats(ctx context.Context, userID, modelVersion string) (*Stats, error) {
	var st Stats

	err := s.db.WithContext(ctx).
		Model(&Contact{}).
		Where("user_id = ?", userID).
		Count(&st.Contacts).Error
	if err != nil {
		return nil, fmt.Errorf("count contacts: %w", err)
	}

	// Embedding rows of soft-deleted contacts linger until the cascade;
	// exclude them so coverage never reads above 100%.
	liveEmbeddings := func() *gorm.DB {
		return s.db.WithContext(ctx).
			Model(&ContactEmbedding{}).
			Joins("JOIN contacts ON contacts.id = contact_embeddings.contact_id AND contacts.deleted_at IS NULL").
			Where("contact_embeddings.user_id = ?", userID)
	}

	if err := liveEmbeddings().Count(&st.Embedded).Error; err != nil {
		return nil, fmt.Errorf("count embeddings: %w", err)
	}

	err = liveEmbeddings().
		Where("contact_embeddings.model_version != ?", modelVersion).
		Count(&st.StaleModel).Error
	if err != nil {
		return nil, fmt.Errorf("count stale embeddings: %w", err)
	}

	return &st, nil
}
