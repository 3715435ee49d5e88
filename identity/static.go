package identity

import (
	"context"
	"fmt"
	"strings"
)

// StaticUser is one user entry from configuration.
type StaticUser struct {
	Name         string
	PasswordHash string
	Enabled      bool
	Roles        []string
}

// StaticDirectory serves users declared in the server configuration.
type StaticDirectory struct {
	users map[string]staticEntry
}

type staticEntry struct {
	hash     []byte
	identity Identity
}

func NewStaticDirectory(users []StaticUser) (*StaticDirectory, error) {
	d := &StaticDirectory{users: make(map[string]staticEntry, len(users))}
	for _, u := range users {
		if u.Name == "" {
			return nil, fmt.Errorf("static user with empty name")
		}
		if _, dup := d.users[u.Name]; dup {
			return nil, fmt.Errorf("duplicate static user %q", u.Name)
		}
		if u.PasswordHash != "" && !strings.HasPrefix(u.PasswordHash, "$2") {
			return nil, fmt.Errorf("user %q: password_hash must be a bcrypt hash", u.Name)
		}
		entry := staticEntry{
			identity: Identity{Subject: u.Name, Enabled: u.Enabled, Roles: normalizeRoles(u.Roles)},
		}
		if u.PasswordHash != "" {
			entry.hash = []byte(u.PasswordHash)
		}
		d.users[u.Name] = entry
	}
	return d, nil
}

func (d *StaticDirectory) LoadRoles(_ context.Context, subject string) (*Identity, error) {
	entry, ok := d.users[subject]
	if !ok {
		return nil, ErrNotFound
	}
	id := entry.identity
	id.Roles = append([]string(nil), id.Roles...)
	return &id, nil
}

// VerifyPassword fails for users without a password hash; they can hold
// credentials issued elsewhere but cannot log in.
func (d *StaticDirectory) VerifyPassword(_ context.Context, subject, password string) error {
	return comparePassword(d.users[subject].hash, password)
}
