package configstore

import (
	"crypto/sha256"
	"fmt"
)

// HashContent returns the hex encoded SHA-256 digest of content.
func HashContent(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}
