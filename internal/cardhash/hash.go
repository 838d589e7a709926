// Package cardhash derives a stable identity for card content so repeated
// imports of the same source material do not duplicate flashcards.
package cardhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ciaranmul/recollect/internal/domain"
)

// Normalize lowercases, trims, and unifies line endings in each field, then
// joins them with newlines so adjacent fields can never run together.
func Normalize(card domain.CardContent) string {
	clean := func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimSpace(s)
		return strings.ReplaceAll(s, "\r\n", "\n")
	}
	return clean(card.Question) + "\n" + clean(card.Answer) + "\n" + clean(card.Context)
}

// Sum returns the hex-encoded SHA-256 of the normalized card content.
func Sum(card domain.CardContent) string {
	digest := sha256.Sum256([]byte(Normalize(card)))
	return hex.EncodeToString(digest[:])
}
