package ledger

import (
	"database/sql"
	"errors"
	"fmt"
)

// Wrap maps driver errors onto the ledger sentinels: sql.ErrNoRows becomes
// ErrNotFound and anything else not already a sentinel is marked
// ErrStoreUnavailable.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStaleState) || errors.Is(err, ErrAlreadyQueued) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}
