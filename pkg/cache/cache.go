// Package cache memoizes normalized model replies keyed by model path,
// message and generation options. Entries expire purely by age.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/pario-ai/chatgate/pkg/models"
)

// DefaultTTL is how long a reply stays servable.
const DefaultTTL = 5 * time.Minute

// Cache is a time-bounded response store.
type Cache interface {
	// Get returns the cached reply for key, or false on a miss or expiry.
	Get(key string) (models.Message, bool)
	// Set stores a reply under key.
	Set(key, model string, resp models.Message) error
	// Clear removes every entry.
	Clear() error
	// Len returns the number of stored entries, expired ones included
	// until they are next looked up.
	Len() int
	// Stats returns entry and hit/miss counts.
	Stats() (models.CacheStats, error)
}

// Key derives a stable cache key from the model path, the normalized message
// and the serialized generation options.
func Key(modelPath, message string, opts models.GenerationOptions) string {
	h := sha256.New()
	h.Write([]byte(modelPath))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeMessage(message)))
	h.Write([]byte{0})
	data, _ := json.Marshal(opts)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeMessage trims the message and collapses runs of whitespace so
// that trivially different inputs share a cache entry.
func NormalizeMessage(message string) string {
	return strings.Join(strings.Fields(message), " ")
}
