// Package identity resolves subjects to their account state and roles, and
// checks login passwords.
package identity

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/hashicorp/go-secure-stdlib/strutil"
	"golang.org/x/crypto/bcrypt"
)

// AdminRole grants access to every subject's credentials.
const AdminRole = "ADMIN"

var (
	ErrNotFound           = errors.New("identity not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Identity is the account-level view of a subject.
type Identity struct {
	Subject string   `json:"subject"`
	Enabled bool     `json:"enabled"`
	Roles   []string `json:"roles"`
}

func (i *Identity) HasRole(role string) bool {
	_, found := slices.BinarySearch(i.Roles, role)
	return found
}

// Resolver loads the roles of a subject. Unknown subjects return ErrNotFound.
type Resolver interface {
	LoadRoles(ctx context.Context, subject string) (*Identity, error)
}

// PasswordVerifier checks login credentials. Both an unknown subject and a
// wrong password return ErrInvalidCredentials.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, subject, password string) error
}

// Invalidator is implemented by resolvers that keep cached identities.
type Invalidator interface {
	Invalidate(subject string)
}

// Directory is a user source that can both resolve and authenticate.
type Directory interface {
	Resolver
	PasswordVerifier
}

// normalizeRoles trims, sorts and de-duplicates role names, dropping
// empties. Case is preserved: role matching is case-sensitive.
func normalizeRoles(roles []string) []string {
	return strutil.RemoveDuplicates(roles, false)
}

var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("vortex-dummy-password"), bcrypt.DefaultCost)
	return h
})

// comparePassword runs bcrypt against hash, or against a dummy hash when the
// user does not exist so both paths take the same time.
func comparePassword(hash []byte, password string) error {
	if hash == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for a user entry.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
