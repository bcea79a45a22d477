package internal

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

const nonceSize = 16

// NewSessionID returns a random UUIDv4 string used as the durable session key.
func NewSessionID() string {
	return uuid.NewString()
}

// NewNonce returns 16 random bytes encoded as unpadded base64url.
func NewNonce() (string, error) {
	var raw [nonceSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
