package storage

import (
	"strings"

	"github.com/google/uuid"
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// cacheKey normalizes the (blockchain, address) pair. Explorer addresses are
// case-insensitive hex, so lookups must not miss on capitalization.
func cacheKey(blockchain, address string) (string, string) {
	return strings.ToLower(blockchain), strings.ToLower(address)
}
