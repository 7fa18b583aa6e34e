package storage

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"memories-social/internal/imtypes"
)

// ErrDuplicateKey is returned when an insert hits a primary key or unique index.
// Services decide what a duplicate means for their operation.
var ErrDuplicateKey = errors.New("duplicate key")

// postgres SQLSTATE for insufficient_privilege (row level security, grants).
const pgInsufficientPrivilege = "42501"

// translateError maps a gorm/driver error into the shared error kinds.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, imtypes.ErrNotFound)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w: %w", op, ErrDuplicateKey, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInsufficientPrivilege {
		return fmt.Errorf("%s: %w: %w", op, imtypes.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w: %w", op, imtypes.ErrTransient, err)
}
