package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when an attestation is missing a field or
	// carries a malformed content hash.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateAttestation is returned when the content hash is already
	// recorded in the chain. The existing record stands.
	ErrDuplicateAttestation = errors.New("attestation already recorded")

	// ErrPersistenceFailure is returned when the chain could not be written
	// durably. The in-memory chain is rolled back before it is returned.
	ErrPersistenceFailure = errors.New("ledger persistence failed")

	// ErrStaleChain is returned by a Store when the chain being saved does
	// not extend the stored chain, meaning another writer appended first.
	ErrStaleChain = errors.New("ledger was changed by another writer")

	// ErrIntegrity is matched by every *IntegrityError.
	ErrIntegrity = errors.New("ledger integrity check failed")

	// ErrBlockNotFound is returned for out-of-range block lookups.
	ErrBlockNotFound = errors.New("block not found")

	// ErrMalformedChain is returned when persisted state fails shape
	// validation on load.
	ErrMalformedChain = errors.New("malformed chain")
)

// IntegrityError reports the first block at which chain verification failed.
type IntegrityError struct {
	Index  int
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed at block %d: %s", e.Index, e.Reason)
}

// Is lets errors.Is(err, ErrIntegrity) match.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}
