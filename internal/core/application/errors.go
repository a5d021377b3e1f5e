package application

import "errors"

var (
	// ErrWalletLocked is returned when an operation needs the private keys
	// of a wallet that is not unlocked.
	ErrWalletLocked = errors.New("wallet is locked")
	// ErrNullPassphrase ...
	ErrNullPassphrase = errors.New("passphrase must not be null")
	// ErrNullRecipients ...
	ErrNullRecipients = errors.New("at least one recipient is required")
	// ErrNoFeeFeed is returned when a fee estimate is requested without a
	// fee feed nor a custom fee rate.
	ErrNoFeeFeed = errors.New("fee feed is not configured")
	// ErrDraftWalletMismatch ...
	ErrDraftWalletMismatch = errors.New("draft does not belong to the wallet")
)
