package warehouse

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrUnknownReference        = errors.New("unknown reference")
	ErrInvalidValue            = errors.New("invalid value")
	ErrDuplicate               = errors.New("duplicate value")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrStatusConflict          = errors.New("order status changed concurrently")
)

// classify maps constraint violations raised by PostgreSQL onto the package sentinels.
// Any other error is returned unchanged.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s (%s)", ErrUnknownReference, pgErr.ConstraintName, pgErr.Detail)
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return fmt.Errorf("%w: %s", ErrInvalidValue, pgErr.Message)
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %s (%s)", ErrDuplicate, pgErr.ConstraintName, pgErr.Detail)
	}
	return err
}
