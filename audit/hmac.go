package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const saltPrefix = "hmac-sha256:"

// Salter replaces values with a keyed hash so that entries can still be
// correlated without exposing the original value.
type Salter struct {
	key []byte
}

func NewSalter(key []byte) *Salter {
	return &Salter{key: append([]byte(nil), key...)}
}

// Salt returns the hex HMAC-SHA256 of data with a "hmac-sha256:" prefix.
// The empty string stays empty.
func (s *Salter) Salt(data string) string {
	if data == "" {
		return ""
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(data))
	return saltPrefix + hex.EncodeToString(mac.Sum(nil))
}
