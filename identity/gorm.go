package identity

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type userRow struct {
	Username     string `gorm:"column:username;primaryKey"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	Enabled      bool   `gorm:"column:enabled;not null"`
}

func (userRow) TableName() string { return "vortex_users" }

type roleRow struct {
	Name string `gorm:"column:name;primaryKey"`
}

func (roleRow) TableName() string { return "vortex_roles" }

type userRoleRow struct {
	Username string `gorm:"column:username;primaryKey"`
	RoleName string `gorm:"column:role_name;primaryKey"`
}

func (userRoleRow) TableName() string { return "vortex_user_roles" }

// GormDirectory reads users and their roles from SQL tables. Roles are
// resolved with a join on every call; wrap it in a CachedResolver to avoid
// that.
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// Migrate creates the user, role and assignment tables if missing.
func (d *GormDirectory) Migrate(ctx context.Context) error {
	if err := d.db.WithContext(ctx).AutoMigrate(&userRow{}, &roleRow{}, &userRoleRow{}); err != nil {
		return fmt.Errorf("migrate identity tables: %w", err)
	}
	return nil
}

func (d *GormDirectory) user(ctx context.Context, subject string) (*userRow, error) {
	var u userRow
	err := d.db.WithContext(ctx).Where("username = ?", subject).Take(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

func (d *GormDirectory) LoadRoles(ctx context.Context, subject string) (*Identity, error) {
	u, err := d.user(ctx, subject)
	if err != nil {
		return nil, err
	}

	var roles []string
	err = d.db.WithContext(ctx).
		Table("vortex_user_roles AS ur").
		Joins("JOIN vortex_roles AS r ON r.name = ur.role_name").
		Where("ur.username = ?", subject).
		Order("r.name").
		Pluck("r.name", &roles).Error
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}

	return &Identity{Subject: u.Username, Enabled: u.Enabled, Roles: normalizeRoles(roles)}, nil
}

func (d *GormDirectory) VerifyPassword(ctx context.Context, subject, password string) error {
	u, err := d.user(ctx, subject)
	switch {
	case errors.Is(err, ErrNotFound):
		return comparePassword(nil, password)
	case err != nil:
		return err
	}
	return comparePassword([]byte(u.PasswordHash), password)
}
