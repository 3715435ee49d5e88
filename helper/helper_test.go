package helper

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oklog/ulid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSigningKey(t *testing.T) {
	a, err := GenerateSigningKey()
	require.NoError(t, err)
	b, err := GenerateSigningKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	key, err := DecodeSigningKey(a)
	require.NoError(t, err)
	assert.Len(t, key, SigningKeySize)
}

func TestDecodeSigningKey(t *testing.T) {
	want := []byte{0xfb, 0xff, 0x01, 0x02}
	for _, s := range []string{"+/8BAg==", "+/8BAg", "-_8BAg==", "-_8BAg"} {
		got, err := DecodeSigningKey(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got)
	}

	_, err := DecodeSigningKey("not base64!")
	assert.Error(t, err)
}

func TestGenerateRequestID(t *testing.T) {
	id := GenerateRequestID()
	_, err := ulid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, GenerateRequestID())
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", ClientIP(r))

	r.RemoteAddr = "10.1.2.3"
	assert.Equal(t, "10.1.2.3", ClientIP(r))
}

func TestFormatTTL(t *testing.T) {
	assert.Equal(t, "1.5h", FormatTTL(90*time.Minute))
	assert.Equal(t, "2.0m", FormatTTL(2*time.Minute))
	assert.Equal(t, "3.0s", FormatTTL(3*time.Second))
	assert.Equal(t, "250ms", FormatTTL(250*time.Millisecond))
	assert.Equal(t, "expired", FormatTTL(0))
}
