package repo

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/tbourn/go-match-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique violation on a table without a named
// constraint contract (e.g. idempotency keys).
var ErrDuplicate = errors.New("duplicate")

// Constraint names a uniqueness rule the store enforces on supplies.
type Constraint string

const (
	ConstraintDemandUser Constraint = domain.IndexSupplyDemandUser
	ConstraintPayment    Constraint = domain.IndexSupplyPayment
)

// ConstraintViolation is returned when an insert is rejected by one of the
// supply unique indexes. Which is engine independent.
type ConstraintViolation struct {
	Which Constraint
	Err   error
}

func (e *ConstraintViolation) Error() string {
	return "unique constraint violated: " + string(e.Which)
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err came from any unique index.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	// glebarez/sqlite returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// classifySupplyViolation maps a store error to the supply constraint it
// violated. Postgres reports the index name; SQLite reports the column list.
func classifySupplyViolation(err error) (Constraint, bool) {
	if !isUniqueViolation(err) {
		return "", false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.ConstraintName {
		case string(ConstraintDemandUser):
			return ConstraintDemandUser, true
		case string(ConstraintPayment):
			return ConstraintPayment, true
		}
		return "", false
	}
	low := strings.ToLower(err.Error())
	switch {
	case strings.Contains(low, "payment_confirmation_id"), strings.Contains(low, string(ConstraintPayment)):
		return ConstraintPayment, true
	case strings.Contains(low, "supplies.demand_id"), strings.Contains(low, string(ConstraintDemandUser)):
		return ConstraintDemandUser, true
	}
	return "", false
}
