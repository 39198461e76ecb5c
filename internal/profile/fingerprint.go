package profile

import (
	"crypto/sha256"
	"encoding/hex"
)

// StoredEmbedding is what the change detector needs to know about an
// existing embedding record.
type StoredEmbedding struct {
	Fingerprint  string
	ModelVersion string
}

// Fingerprint returns the SHA-256 hex digest of the composed text. Used
// purely as a change-detection token, not for security.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NeedsReembed computes the fingerprint of text and reports whether a new
// embedding must be generated. Re-embedding is needed unless a stored
// record exists with the same fingerprint and the same model version.
// Empty composed text never needs re-embedding; an empty contact should
// not consume API budget.
func NeedsReembed(text string, stored *StoredEmbedding, modelVersion string) (fingerprint string, needsUpdate bool) {
	if text == "" {
		return "", false
	}
	fingerprint = Fingerprint(text)
	if stored != nil && stored.Fingerprint == fingerprint && stored.ModelVersion == modelVersion {
		return fingerprint, false
	}
	return fingerprint, true
}
