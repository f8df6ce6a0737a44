package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

var (
	// ErrInvalidRefresh is returned for unknown, revoked or expired refresh tokens.
	ErrInvalidRefresh = errors.New("invalid refresh token")
)

// GenerateRefreshToken returns a random token and the hash that gets persisted.
func GenerateRefreshToken() (raw string, hashed string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}

	raw = base64.RawURLEncoding.EncodeToString(buf)
	hashed = HashRefreshToken(raw)
	return raw, hashed, nil
}

// HashRefreshToken produces the base64 SHA-256 of a raw token.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// RefreshRedisKey builds the redis key holding a refresh token's subject.
func RefreshRedisKey(hash string) string {
	return "refresh:" + hash
}
