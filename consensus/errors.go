package consensus

import "errors"

// Error taxonomy of the consensus core. The pipeline keys its recovery
// behaviour off these sentinels: unknown-parent and future-slot are
// recoverable, invariant violations are fatal.
var (
	ErrInvalidBlock       = errors.New("invalid block")
	ErrInvalidAttestation = errors.New("invalid attestation")
	ErrUnknownParent      = errors.New("unknown parent")
	ErrFutureSlot         = errors.New("block slot is in the future")
	ErrInvariantViolation = errors.New("internal invariant violation")
)
