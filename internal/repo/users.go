package repo

import (
	"context"

	"gorm.io/gorm"
)

// UserDirectory answers account existence from a users table owned by the
// account service. Only the id column is read.
type UserDirectory struct {
	DB    *gorm.DB
	Table string
}

// NewUserDirectory returns a directory over table, defaulting to "users".
func NewUserDirectory(db *gorm.DB, table string) *UserDirectory {
	if table == "" {
		table = "users"
	}
	return &UserDirectory{DB: db, Table: table}
}

// Exists reports whether a row with the given id is present.
func (d *UserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	var n int64
	err := d.DB.WithContext(ctx).Table(d.Table).Where("id = ?", userID).Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
