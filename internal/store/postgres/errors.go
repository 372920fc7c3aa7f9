package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"gearledger/internal/domain"
)

// classify maps a database error onto the domain sentinels.
//
//	23505 unique violation, 23P01 exclusion violation  -> ErrConflict
//	23503 foreign key violation, no rows               -> ErrNotFound
//	23514 check violation, 22P02 bad text repr.        -> ErrValidation
//	40001 serialization failure, 40P01 deadlock,
//	class 08 connection errors, anything else          -> ErrStoreUnavailable
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "23P01":
			return fmt.Errorf("%w: %s", domain.ErrConflict, pqErr.Message)
		case "23503":
			return fmt.Errorf("%w: %s", domain.ErrNotFound, pqErr.Message)
		case "23514", "22P02":
			return fmt.Errorf("%w: %s", domain.ErrValidation, pqErr.Message)
		}
		return fmt.Errorf("%w: %s (%s)", domain.ErrStoreUnavailable, pqErr.Message, pqErr.Code)
	}

	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
