// Package romix implements the memory-hard SHA-512 ROMix key derivation
// used by legacy wallet files. It exists only to open those files: new
// key material is protected with Argon2id.
package romix

import (
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	hashSize = sha512.Size

	// KeyLen is the size of a derived key.
	KeyLen = 32
	// MaxMemory and MaxIterations bound the work a crafted file can ask for.
	MaxMemory     = 1 << 30
	MaxIterations = 1 << 16
)

var (
	// ErrInvalidParams ...
	ErrInvalidParams = errors.New("invalid romix params")
)

// Params are the key-stretching parameters stored in a legacy wallet file.
type Params struct {
	// Memory is the size in bytes of the lookup table, a multiple of 64.
	Memory     uint64
	Iterations uint32
	Salt       [32]byte
}

func (p Params) validate() error {
	if p.Memory < hashSize || p.Memory%hashSize != 0 {
		return fmt.Errorf(
			"%w: memory must be a positive multiple of %d", ErrInvalidParams, hashSize,
		)
	}
	if p.Memory > MaxMemory {
		return fmt.Errorf("%w: memory exceeds %d bytes", ErrInvalidParams, MaxMemory)
	}
	if p.Iterations == 0 || p.Iterations > MaxIterations {
		return fmt.Errorf(
			"%w: iterations must be in range [1, %d]", ErrInvalidParams, MaxIterations,
		)
	}
	return nil
}

// DeriveKey stretches the passphrase into a 32-byte symmetric key. Every
// round runs ROMix over the previous round's output, the first one over the
// passphrase itself.
func DeriveKey(passphrase []byte, params Params) ([]byte, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	lookupTable := make([]byte, params.Memory)
	defer zero(lookupTable)

	key := make([]byte, len(passphrase))
	copy(key, passphrase)
	for i := uint32(0); i < params.Iterations; i++ {
		next := deriveOnce(key, params.Salt[:], lookupTable)
		zero(key)
		key = next
	}
	return key, nil
}

func deriveOnce(password, salt, lookupTable []byte) []byte {
	seqCount := uint32(len(lookupTable) / hashSize)

	seed := make([]byte, 0, len(password)+len(salt))
	seed = append(seed, password...)
	seed = append(seed, salt...)
	first := sha512.Sum512(seed)
	zero(seed)
	copy(lookupTable, first[:])

	for n := hashSize; n < len(lookupTable); n += hashSize {
		next := sha512.Sum512(lookupTable[n-hashSize : n])
		copy(lookupTable[n:n+hashSize], next[:])
	}

	x := make([]byte, hashSize)
	y := make([]byte, hashSize)
	defer zero(x)
	defer zero(y)
	copy(x, lookupTable[len(lookupTable)-hashSize:])

	for i := uint32(0); i < seqCount/2; i++ {
		idx := binary.LittleEndian.Uint32(x[hashSize-4:]) % seqCount
		v := lookupTable[idx*hashSize : (idx+1)*hashSize]
		for j := range y {
			y[j] = x[j] ^ v[j]
		}
		sum := sha512.Sum512(y)
		copy(x, sum[:])
	}

	out := make([]byte, KeyLen)
	copy(out, x)
	return out
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
