package settlements

import (
	"crypto/sha256"
	"encoding/hex"
)

// PayloadHash fingerprints the raw notification body.
func PayloadHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
