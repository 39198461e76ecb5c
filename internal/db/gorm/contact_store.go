package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kinshiphq/kinship/pkg/models"
)

// ContactStore provides contact-related database operations.
type ContactStore struct {
	db *gorm.DB
}

// NewContactStore creates a new contact store.
func NewContactStore(store *Store) *ContactStore {
	return &ContactStore{db: store.DB}
}

// GetContact returns the contact owned by userID, or nil when it does not
// exist, is soft-deleted, or belongs to another user. Absence is not an
// error; batch callers treat it as a skip.
func (s *ContactStore) GetContact(ctx context.Context, contactID, userID string) (*models.Contact, error) {
	var c Contact
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", contactID, userID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact %s: %w", contactID, err)
	}
	return toModelContact(&c), nil
}

// RecentNotes returns up to limit notes for a contact, newest first.
func (s *ContactStore) RecentNotes(ctx context.Context, contactID string, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = 5
	}
	var rows []Note
	err := s.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent notes for %s: %w", contactID, err)
	}

	notes := make([]models.Note, len(rows))
	for i, r := range rows {
		notes[i] = models.Note{
			ID:        r.ID,
			ContactID: r.ContactID,
			UserID:    r.UserID,
			Body:      r.Body,
			CreatedAt: r.CreatedAt,
		}
	}
	return notes, nil
}

// TagNames returns the tag names attached to a contact. Order is not
// guaranteed; callers needing determinism sort.
func (s *ContactStore) TagNames(ctx context.Context, contactID string) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&Tag{}).
		Joins("JOIN contact_tags ON contact_tags.tag_id = tags.id").
		Where("contact_tags.contact_id = ?", contactID).
		Pluck("tags.name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("tag names for %s: %w", contactID, err)
	}
	return names, nil
}

// ListEmbeddable returns up to limit contact IDs owned by userID, excluding
// soft-deleted contacts, in stable creation order. A sweep over these IDs is
// best-effort; callers loop until fewer than limit are returned.
func (s *ContactStore) ListEmbeddable(ctx context.Context, userID string, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&Contact{}).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list embeddable contacts: %w", err)
	}
	return ids, nil
}

// CreateContact inserts a new contact and returns its ID.
func (s *ContactStore) CreateContact(ctx context.Context, contact *models.Contact) (string, error) {
	row := &Contact{
		ID:           contact.ID,
		UserID:       contact.UserID,
		Name:         contact.Name,
		Organization: contact.Organization,
		Role:         contact.Role,
		HowWeMet:     contact.HowWeMet,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", fmt.Errorf("create contact: %w", err)
	}
	return row.ID, nil
}

// AddNote attaches a free-text note to a contact.
func (s *ContactStore) AddNote(ctx context.Context, contactID, userID, body string) (int64, error) {
	row := &Note{ContactID: contactID, UserID: userID, Body: body}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, fmt.Errorf("add note: %w", err)
	}
	return row.ID, nil
}

// TagContact attaches a named tag to a contact, creating the tag if needed.
// Both writes are idempotent.
func (s *ContactStore) TagContact(ctx context.Context, contactID, userID, name string) error {
	tag := &Tag{UserID: userID, Name: name}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
			DoNothing: true,
		}).
		Create(tag).Error
	if err != nil {
		return fmt.Errorf("upsert tag %q: %w", name, err)
	}
	if tag.ID == 0 {
		// Conflict path: fetch the existing row.
		if err := s.db.WithContext(ctx).
			Where("user_id = ? AND name = ?", userID, name).
			First(tag).Error; err != nil {
			return fmt.Errorf("lookup tag %q: %w", name, err)
		}
	}

	link := &ContactTag{ContactID: contactID, TagID: tag.ID}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(link).Error
	if err != nil {
		return fmt.Errorf("tag contact %s: %w", contactID, err)
	}
	return nil
}

// SoftDeleteContact marks a contact deleted. Its embedding row survives
// until hard deletion cascades it, but every read path excludes it.
func (s *ContactStore) SoftDeleteContact(ctx context.Context, contactID, userID string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", contactID, userID).
		Delete(&Contact{})
	if res.Error != nil {
		return fmt.Errorf("delete contact %s: %w", contactID, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// toModelContact converts a GORM row to the domain type.
func toModelContact(c *Contact) *models.Contact {
	m := &models.Contact{
		ID:           c.ID,
		UserID:       c.UserID,
		Name:         c.Name,
		Organization: c.Organization,
		Role:         c.Role,
		HowWeMet:     c.HowWeMet,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.DeletedAt.Valid {
		t := c.DeletedAt.Time
		m.DeletedAt = &t
	}
	return m
}
