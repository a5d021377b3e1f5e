package txbuilder

import (
	"errors"
	"fmt"
)

var (
	// ErrDoubleSpendConflict is returned when an input is already claimed by
	// another in-flight draft.
	ErrDoubleSpendConflict = errors.New("outpoint is already claimed by another draft")
	// ErrDuplicateInput ...
	ErrDuplicateInput = errors.New("outpoint is already an input of the draft")
	// ErrDustOutput is returned for outputs worth less than the dust
	// threshold, unless explicitly allowed.
	ErrDustOutput = errors.New("output value is below the dust threshold")
	// ErrInvalidSequence is returned when an input sequence contradicts the
	// draft's replace-by-fee policy.
	ErrInvalidSequence = errors.New("input sequence contradicts the replace-by-fee policy")
	// ErrSigningFailed ...
	ErrSigningFailed = errors.New("failed to sign input")
	// ErrFeeTooLow is returned when the fee doesn't meet the min relay fee.
	ErrFeeTooLow = errors.New("fee is below the min relay fee")
	// ErrFeeNotIncreased is returned when bumping a transaction with a fee
	// not greater than the replaced one's.
	ErrFeeNotIncreased = errors.New("replacement fee must be greater than the original one")
	// ErrInvalidState is returned when an operation is not allowed in the
	// current state of the draft.
	ErrInvalidState = errors.New("operation not allowed in the current draft state")
	// ErrInputsNotSigned ...
	ErrInputsNotSigned = errors.New("not all inputs are signed")
	// ErrNullOutputs ...
	ErrNullOutputs = errors.New("draft must have at least one output")
	// ErrNullChange is returned when a change output is required but no
	// change destination was given.
	ErrNullChange = errors.New("change output required but change destination is null")
	// ErrNullScript ...
	ErrNullScript = errors.New("output script must not be null")
	// ErrNullNetwork ...
	ErrNullNetwork = errors.New("network params are null")
	// ErrNullClaimer ...
	ErrNullClaimer = errors.New("claimer must not be null")
	// ErrNullSigner ...
	ErrNullSigner = errors.New("signer must not be null")
	// ErrInvalidPSBT ...
	ErrInvalidPSBT = errors.New("psbt does not match the draft")
)

// Invariant names the rule a BuildError reports as violated.
type Invariant string

const (
	InvariantFeeFloor  Invariant = "fee floor"
	InvariantDustFloor Invariant = "dust floor"
	InvariantSequence  Invariant = "sequence"
	InvariantState     Invariant = "state"
	InvariantClaim     Invariant = "claim"
)

// BuildError is returned by draft operations that would break one of the
// draft's invariants.
type BuildError struct {
	Invariant Invariant
	Err       error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s invariant violated: %s", e.Invariant, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

func buildError(invariant Invariant, err error) error {
	return &BuildError{Invariant: invariant, Err: err}
}
