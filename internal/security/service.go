// Package security implements password hashing, JWT issuance/validation, and
// AEAD encryption for the chat system.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/alitto/pond"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/chatcore/server/internal/chaterr"
	"github.com/chatcore/server/internal/config"
)

// Service hashes passwords, mints and validates bearer tokens, and encrypts
// message payloads for encrypted chats.
type Service struct {
	jwtSecret       []byte
	jwtExpiration   time.Duration
	encryptionKey   []byte // nil unless encryption is enabled
	hashWorkerPool  *pond.WorkerPool
}

// Claims is the JWT payload minted by CreateToken.
type Claims struct {
	jwt.RegisteredClaims
}

// New constructs a Service from cfg, validating that the fields required for
// the enabled features are present. pool runs the CPU-bound bcrypt work off
// the calling goroutine; a nil pool runs it inline.
func New(cfg *config.Config, pool *pond.WorkerPool) (*Service, error) {
	if cfg.JWTSecret == "" {
		return nil, chaterr.Config("jwt_secret is required")
	}

	s := &Service{
		jwtSecret:      []byte(cfg.JWTSecret),
		jwtExpiration:  time.Duration(cfg.JWTExpirationMinutes) * time.Minute,
		hashWorkerPool: pool,
	}

	if cfg.EnableEncryption {
		if cfg.EncryptionKey == "" {
			return nil, chaterr.Config("encryption_key is required when enable_encryption is true")
		}
		key, err := normalizeKey(cfg.EncryptionKey)
		if err != nil {
			return nil, chaterr.Config(fmt.Sprintf("invalid encryption_key: %v", err))
		}
		s.encryptionKey = key
	}

	return s, nil
}

// normalizeKey derives a 32-byte ChaCha20-Poly1305 key from the configured
// secret: hex-decoded if it decodes cleanly to 32 bytes, otherwise SHA-256'd.
func normalizeKey(secret string) ([]byte, error) {
	if raw, err := hex.DecodeString(secret); err == nil && len(raw) == chacha20poly1305.KeySize {
		return raw, nil
	}
	return deriveKey(secret), nil
}

func (s *Service) runHash(fn func() (string, error)) (string, error) {
	if s.hashWorkerPool == nil {
		return fn()
	}
	type result struct {
		hash string
		err  error
	}
	out := make(chan result, 1)
	s.hashWorkerPool.Submit(func() {
		h, err := fn()
		out <- result{h, err}
	})
	r := <-out
	return r.hash, r.err
}

// HashPassword returns the bcrypt digest of plaintext.
func (s *Service) HashPassword(plaintext string) (string, error) {
	hash, err := s.runHash(func() (string, error) {
		h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
		return string(h), err
	})
	if err != nil {
		return "", chaterr.Storage("password hashing failed", err)
	}
	return hash, nil
}

// VerifyPassword reports whether plaintext matches hash.
func (s *Service) VerifyPassword(plaintext, hash string) bool {
	_, err := s.runHash(func() (string, error) {
		return "", bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	})
	return err == nil
}

// CreateToken mints a signed bearer token for userID. A negative ttlOverride
// produces an already-expired token, for test use. Zero uses the configured
// default expiration.
func (s *Service) CreateToken(userID string, ttlOverride time.Duration) (string, error) {
	ttl := s.jwtExpiration
	if ttlOverride != 0 {
		ttl = ttlOverride
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", chaterr.Auth("token signing failed")
	}
	return signed, nil
}

// DecodeToken parses and validates tokenString, returning its claims.
func (s *Service) DecodeToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, chaterr.Auth("invalid or expired token")
	}
	return claims, nil
}

// GetUserIDFromToken decodes tokenString and returns its subject.
func (s *Service) GetUserIDFromToken(tokenString string) (string, error) {
	claims, err := s.DecodeToken(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", chaterr.Auth("token missing subject")
	}
	return claims.Subject, nil
}

// Encrypt seals plaintext with ChaCha20-Poly1305, returning a hex string of
// nonce||ciphertext||tag. Fails with ConfigError if encryption is disabled.
func (s *Service) Encrypt(plaintext string) (string, error) {
	if s.encryptionKey == nil {
		return "", chaterr.Config("encryption is not enabled")
	}
	aead, err := chacha20poly1305.New(s.encryptionKey)
	if err != nil {
		return "", chaterr.Storage("cipher construction failed", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", chaterr.Storage("nonce generation failed", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (s *Service) Decrypt(ciphertext string) (string, error) {
	if s.encryptionKey == nil {
		return "", chaterr.Config("encryption is not enabled")
	}
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", chaterr.Validation("ciphertext is not valid hex")
	}
	aead, err := chacha20poly1305.New(s.encryptionKey)
	if err != nil {
		return "", chaterr.Storage("cipher construction failed", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", chaterr.Validation("ciphertext too short")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", chaterr.Storage("decryption failed", err)
	}
	return string(plain), nil
}

// GenerateRandomKey returns a hex-encoded random key of length bytes
// (32 if length is 0).
func (s *Service) GenerateRandomKey(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", chaterr.Storage("random key generation failed", err)
	}
	return hex.EncodeToString(buf), nil
}
