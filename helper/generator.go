package helper

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/oklog/ulid"
)

// SigningKeySize is the length in bytes of keys produced by GenerateSigningKey.
const SigningKeySize = 32

// GenerateSigningKey returns a fresh random HMAC key, base64 encoded.
func GenerateSigningKey() (string, error) {
	key := make([]byte, SigningKeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// DecodeSigningKey accepts standard or URL-safe base64, padded or not.
func DecodeSigningKey(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if key, err := enc.DecodeString(s); err == nil {
			return key, nil
		}
	}
	return nil, fmt.Errorf("signing key is not valid base64")
}

func GenerateRequestID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
