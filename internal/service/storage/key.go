package storage

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai-voice-transcription-service/internal/service/format"
)

const keyPrefix = "voice/"

// KeyGenerator produces object keys of the form
// voice/{userId}/{epochMillis}-{randomHex}.{format}.
type KeyGenerator struct {
	now       func() time.Time
	randomHex func() string
}

// NewKeyGenerator returns a generator using the wall clock and random UUIDs.
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{now: time.Now, randomHex: uuidHex}
}

// Next returns a fresh key. Keys are never reused.
func (g *KeyGenerator) Next(userID string, f format.Format) string {
	return fmt.Sprintf("%s%s/%d-%s.%s", keyPrefix, userID, g.now().UnixMilli(), g.randomHex(), f)
}

// OwnedBy reports whether key lives under the user's prefix.
// Keys are flat under the prefix, so a user never owns a nested path.
func OwnedBy(key, userID string) bool {
	if userID == "" || strings.Contains(userID, "/") || strings.Contains(key, "..") {
		return false
	}
	name, ok := strings.CutPrefix(key, keyPrefix+userID+"/")
	return ok && name != "" && !strings.Contains(name, "/")
}

func uuidHex() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
