package cryptoutils

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomHex64 returns 32 cryptographically random bytes rendered as a
// 64-character lowercase hex string. Session ids and nonces are each drawn
// independently from this.
func RandomHex64() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(buf)
}
