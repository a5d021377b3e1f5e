package legacy

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned when the file id, version or network
	// of a file are not recognized, or a section is truncated.
	ErrUnsupportedFormat = errors.New("unsupported legacy wallet format")
	// ErrDecryptionFailed is returned when the root key cannot be decrypted,
	// most likely because of a wrong or missing passphrase.
	ErrDecryptionFailed = errors.New("failed to decrypt legacy wallet root key")
	// ErrChecksumMismatch is returned when a stored field does not match its
	// checksum, meaning the file is corrupted.
	ErrChecksumMismatch = errors.New("legacy wallet checksum mismatch")
	// ErrMalformedEntry ...
	ErrMalformedEntry = errors.New("malformed legacy wallet entry")
)

// Stage identifies the section of the file being decoded.
type Stage string

const (
	StageHeader Stage = "header"
	StageCrypto Stage = "crypto"
	StageKeyGen Stage = "keygen"
	StageEntry  Stage = "entry"
)

// DecodeError reports the section of the file, and the offset at which that
// section starts, where decoding failed.
type DecodeError struct {
	Stage  Stage
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf(
		"legacy wallet %s at offset %d: %s", e.Stage, e.Offset, e.Err,
	)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
