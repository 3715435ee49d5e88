package hashpassword

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	HashPasswordCmd.SetIn(strings.NewReader(stdin))
	HashPasswordCmd.SetOut(&out)
	HashPasswordCmd.SetErr(&bytes.Buffer{})
	HashPasswordCmd.SetArgs(args)
	err := HashPasswordCmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestHashPassword_Argument(t *testing.T) {
	hash, err := run(t, "", "s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestHashPassword_Stdin(t *testing.T) {
	hash, err := run(t, "from-stdin\n")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("from-stdin")))

	hash, err = run(t, "no-newline")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("no-newline")))
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := run(t, "")
	assert.Error(t, err)

	_, err = run(t, "\n")
	assert.Error(t, err)
}
