package legacy

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tdex-network/btcvault/pkg/legacy/romix"
	"github.com/tdex-network/btcvault/pkg/securestore"
)

// ImportResult is the content of a decoded legacy wallet file.
type ImportResult struct {
	Header Header
	// KDF is set for encrypted files.
	KDF *romix.Params
	// RootKey is nil for watch-only files.
	RootKey       *securestore.Scalar
	RootPublicKey *btcec.PublicKey
	ChainCode     []byte
	Entries       []Entry
	// Partial is set when decoding stopped at a malformed entry.
	Partial *PartialImport
}

// IsWatchOnly returns whether no private root key was recovered.
func (r *ImportResult) IsWatchOnly() bool {
	return r.RootKey == nil
}

// Close zeroes the recovered key material.
func (r *ImportResult) Close() {
	if r.RootKey != nil {
		r.RootKey.Zero()
	}
	securestore.Zero(r.ChainCode)
}

// PartialImport describes an entry table that could be decoded only up to
// a malformed entry.
type PartialImport struct {
	// Recovered is the number of entries decoded before the malformed one.
	Recovered int
	// SkippedBytes is the number of trailing bytes left undecoded.
	SkippedBytes int
	// Offset of the malformed entry.
	Offset int
	Reason error
}

// Decode parses a legacy wallet file and decrypts its root key with the
// given passphrase. The passphrase is ignored for unencrypted and
// watch-only files. Failures are returned as *DecodeError.
func Decode(raw, passphrase []byte) (*ImportResult, error) {
	header, err := parseHeader(raw)
	if err != nil {
		return nil, &DecodeError{Stage: StageHeader, Err: err}
	}

	if len(raw) < keyGenOffset {
		return nil, &DecodeError{
			Stage:  StageCrypto,
			Offset: headerSize,
			Err:    fmt.Errorf("%w: crypto section truncated", ErrUnsupportedFormat),
		}
	}
	crypto, err := parseCryptoSection(raw[headerSize:keyGenOffset], header.IsEncrypted())
	if err != nil {
		return nil, &DecodeError{Stage: StageCrypto, Offset: headerSize, Err: err}
	}

	if len(raw) < entriesOffset {
		return nil, &DecodeError{
			Stage:  StageKeyGen,
			Offset: keyGenOffset,
			Err:    fmt.Errorf("%w: key generator truncated", ErrUnsupportedFormat),
		}
	}
	record, pubkey, err := parseKeyGenerator(raw[keyGenOffset:entriesOffset], crypto)
	if err != nil {
		return nil, &DecodeError{Stage: StageKeyGen, Offset: keyGenOffset, Err: err}
	}

	result := &ImportResult{
		Header:        *header,
		RootPublicKey: pubkey,
		ChainCode:     append([]byte{}, record.ChainCode[:]...),
	}
	if header.IsEncrypted() {
		kdf := crypto.kdf
		result.KDF = &kdf
	}

	if !header.IsWatchOnly() && record.HasPrivateKey() {
		rootKey, err := unlockRootKey(header, crypto, record, pubkey, passphrase)
		if err != nil {
			result.Close()
			return nil, &DecodeError{Stage: StageKeyGen, Offset: keyGenOffset, Err: err}
		}
		result.RootKey = rootKey
	}

	entries, partial, err := decodeEntries(raw, entriesOffset)
	if err != nil {
		result.Close()
		return nil, err
	}
	result.Entries = entries
	result.Partial = partial

	return result, nil
}

func parseKeyGenerator(
	raw []byte, crypto *cryptoSection,
) (*AddressRecord, *btcec.PublicKey, error) {
	record, err := parseAddressRecord(raw)
	if err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(checksum(raw), crypto.keyGenChecksum[:]) {
		return nil, nil, fmt.Errorf("%w: key generator block", ErrChecksumMismatch)
	}

	pubkey, err := record.PubKey()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid root public key", ErrUnsupportedFormat)
	}
	if !record.commitsTo(pubkey) {
		return nil, nil, fmt.Errorf(
			"%w: hash160 does not match root public key", ErrChecksumMismatch,
		)
	}
	return record, pubkey, nil
}

// unlockRootKey returns the root private key, decrypting it if necessary.
// A key that does not match the stored public key means a wrong passphrase
// for encrypted files and corruption otherwise.
func unlockRootKey(
	header *Header, crypto *cryptoSection, record *AddressRecord,
	pubkey *btcec.PublicKey, passphrase []byte,
) (*securestore.Scalar, error) {
	if header.IsEncrypted() != record.IsEncrypted() {
		return nil, fmt.Errorf(
			"%w: header and key generator disagree on encryption",
			ErrUnsupportedFormat,
		)
	}

	plaintext := make([]byte, len(record.PrivateKey))
	defer securestore.Zero(plaintext)

	mismatchErr := fmt.Errorf("%w: root private key", ErrChecksumMismatch)
	if header.IsEncrypted() {
		if len(passphrase) <= 0 {
			return nil, fmt.Errorf("%w: missing passphrase", ErrDecryptionFailed)
		}
		key, err := romix.DeriveKey(passphrase, crypto.kdf)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, err)
		}
		err = decryptCFB(key, record.IV[:], record.PrivateKey[:], plaintext)
		securestore.Zero(key)
		if err != nil {
			return nil, err
		}
		mismatchErr = fmt.Errorf("%w: wrong passphrase", ErrDecryptionFailed)
	} else {
		copy(plaintext, record.PrivateKey[:])
	}

	var scalar btcec.ModNScalar
	overflow := scalar.SetByteSlice(plaintext)
	invalid := overflow || scalar.IsZero()
	scalar.Zero()
	if invalid {
		return nil, mismatchErr
	}

	privkey, _ := btcec.PrivKeyFromBytes(plaintext)
	matches := privkey.PubKey().IsEqual(pubkey)
	privkey.Zero()
	if !matches {
		return nil, mismatchErr
	}

	return securestore.NewScalar(plaintext), nil
}

func decodeEntries(raw []byte, offset int) ([]Entry, *PartialImport, error) {
	entries := make([]Entry, 0)
	for offset < len(raw) {
		entry, size, err := readEntry(raw[offset:])
		if err != nil {
			if len(entries) <= 0 {
				return nil, nil, &DecodeError{
					Stage: StageEntry, Offset: offset, Err: err,
				}
			}
			return entries, &PartialImport{
				Recovered:    len(entries),
				SkippedBytes: len(raw) - offset,
				Offset:       offset,
				Reason:       err,
			}, nil
		}
		entry.Offset = offset
		entries = append(entries, entry)
		offset += size
	}
	return entries, nil, nil
}

func decryptCFB(key, iv, ciphertext, plaintext []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(plaintext, ciphertext)
	return nil
}
