package gorm

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/kinshiphq/kinship/pkg/models"
)

// testDims keeps test vectors tiny. The test database's
// contact_embeddings table is created with this dimensionality on first
// run; point KINSHIP_TEST_DATABASE_URL at a throwaway database.
const testDims = 3

const testUser = "default"

// testStore opens a store against the database named by
// KINSHIP_TEST_DATABASE_URL and wipes its tables. Tests are skipped when
// the variable is unset so the suite runs without PostgreSQL.
func testStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("KINSHIP_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("KINSHIP_TEST_DATABASE_URL not set; skipping database tests")
	}

	store, err := NewStore(Config{
		DSN:      dsn,
		MaxConns: 4,
		LogLevel: logger.Silent,
	}, testDims)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	err = store.GetDB().Exec(
		"TRUNCATE contact_embeddings, contact_tags, tags, notes, contacts CASCADE",
	).Error
	require.NoError(t, err)

	return store
}

// mustCreateContact inserts a contact and returns its id.
func mustCreateContact(t *testing.T, cs *ContactStore, userID, name string) string {
	t.Helper()
	id, err := cs.CreateContact(context.Background(), &models.Contact{
		UserID: userID,
		Name:   name,
	})
	require.NoError(t, err)
	return id
}
