package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashKey returns the hex encoded HMAC-SHA256 of key under pepper.
// Seeding tools use it to store keys the same way Authenticate looks them up.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator resolves raw API keys to principals.
type Authenticator struct {
	apikeys Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given API key
// repository and HMAC pepper.
func NewAuthenticator(apikeys Repository, pepper []byte) *Authenticator {
	return &Authenticator{apikeys: apikeys, pepper: pepper}
}

// Authenticate hashes key, looks it up and compares the stored hash in
// constant time. Any failure is reported as ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (Principal, error) {
	if key == "" {
		return Principal{}, ErrUnauthorized
	}
	mac := hmac.New(sha256.New, a.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := a.apikeys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		return Principal{}, ErrUnauthorized
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return Principal{}, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(hash, stored) != 1 {
		return Principal{}, ErrUnauthorized
	}

	return Principal{ConsumerID: info.ConsumerID, Role: info.Role}, nil
}
