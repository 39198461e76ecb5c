// Package profile derives the canonical text representation of a contact
// and decides when its stored embedding is stale.
package profile

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/kinshiphq/kinship/pkg/models"
)

// multiSpaceRegex matches runs of whitespace for normalization.
var multiSpaceRegex = regexp.MustCompile(`\s+`)

// ContactSource is the narrow read surface the composer needs from the
// relational store.
type ContactSource interface {
	// GetContact returns nil (no error) when the contact does not exist,
	// is soft-deleted, or is not owned by userID. "Absent" is an expected
	// skip condition in batch mode, not a failure.
	GetContact(ctx context.Context, contactID, userID string) (*models.Contact, error)

	// RecentNotes returns up to limit notes for the contact, newest first.
	RecentNotes(ctx context.Context, contactID string, limit int) ([]models.Note, error)

	// TagNames returns the names of tags attached to the contact.
	TagNames(ctx context.Context, contactID string) ([]string, error)
}

// Composer builds deterministic profile text for embedding input.
type Composer struct {
	source   ContactSource
	maxNotes int
}

// NewComposer creates a Composer reading from source. maxNotes caps how
// many recent notes feed the profile.
func NewComposer(source ContactSource, maxNotes int) *Composer {
	if maxNotes <= 0 {
		maxNotes = 5
	}
	return &Composer{source: source, maxNotes: maxNotes}
}

// Compose returns the canonical profile text for a contact, or "" when the
// contact is absent, soft-deleted, or owned by a different user. The output
// is order-deterministic for identical underlying data so fingerprints are
// stable across runs: identity fields first, then provenance, then notes
// newest-first, then tag names sorted ascending.
func (c *Composer) Compose(ctx context.Context, contactID, userID string) (string, error) {
	contact, err := c.source.GetContact(ctx, contactID, userID)
	if err != nil {
		return "", err
	}
	if contact == nil {
		return "", nil
	}

	var parts []string
	appendPart := func(s string) {
		if s = normalize(s); s != "" {
			parts = append(parts, s)
		}
	}

	appendPart(contact.Name)
	appendPart(contact.Organization)
	appendPart(contact.Role)
	appendPart(contact.HowWeMet)

	notes, err := c.source.RecentNotes(ctx, contactID, c.maxNotes)
	if err != nil {
		return "", err
	}
	for _, n := range notes {
		appendPart(n.Body)
	}

	tags, err := c.source.TagNames(ctx, contactID)
	if err != nil {
		return "", err
	}
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = normalize(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	// Tag sets are unordered in the schema; sort for determinism.
	sort.Strings(cleaned)
	if len(cleaned) > 0 {
		parts = append(parts, strings.Join(cleaned, ", "))
	}

	return strings.Join(parts, "\n"), nil
}

// normalize collapses whitespace runs and trims the result.
func normalize(s string) string {
	return strings.TrimSpace(multiSpaceRegex.ReplaceAllString(s, " "))
}
