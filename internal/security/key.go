package security

import "crypto/sha256"

// deriveKey folds an arbitrary-length secret into a 32-byte ChaCha20-Poly1305
// key so operators can configure encryption_key as a passphrase instead of
// exact hex.
func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}
