package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"runtime"

	"github.com/tdex-network/btcvault/pkg/securestore"
	"golang.org/x/crypto/argon2"
)

const (
	argon2idParamsLen = 25
	argon2idKeyLen    = 32
)

// Argon2idParams are the key-stretching parameters stored in front of every
// cyphertext.
type Argon2idParams struct {
	Salt    [16]byte
	Time    uint32
	Memory  uint32
	Threads uint8
}

// NewArgon2idParams returns params with a random salt and the given costs.
// Memory is expressed in KiB.
func NewArgon2idParams(time, memory uint32) (*Argon2idParams, error) {
	params := &Argon2idParams{
		Time:    time,
		Memory:  memory,
		Threads: uint8(minInt(runtime.NumCPU(), 255)),
	}
	if _, err := rand.Read(params.Salt[:]); err != nil {
		return nil, err
	}
	return params, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *Argon2idParams) MarshalBinary() ([]byte, error) {
	buf := make([]byte, argon2idParamsLen)
	copy(buf, p.Salt[:])
	binary.LittleEndian.PutUint32(buf[16:], p.Time)
	binary.LittleEndian.PutUint32(buf[20:], p.Memory)
	buf[24] = p.Threads
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *Argon2idParams) UnmarshalBinary(data []byte) error {
	if len(data) != argon2idParamsLen {
		return ErrInvalidCypherText
	}
	copy(p.Salt[:], data)
	p.Time = binary.LittleEndian.Uint32(data[16:])
	p.Memory = binary.LittleEndian.Uint32(data[20:])
	p.Threads = data[24]
	if p.Time == 0 || p.Memory == 0 || p.Threads == 0 {
		return ErrInvalidCypherText
	}
	return nil
}

// DefaultKDFTime and DefaultKDFMemory are the Argon2id costs used by Encrypt.
var (
	DefaultKDFTime   uint32 = 1
	DefaultKDFMemory uint32 = 64 * 1024
)

// EncryptOpts is the struct given to Encrypt method
type EncryptOpts struct {
	PlainText  []byte
	Passphrase []byte
}

func (o EncryptOpts) validate() error {
	if len(o.PlainText) <= 0 {
		return ErrNullPlainText
	}
	if len(o.Passphrase) <= 0 {
		return ErrNullPassphrase
	}
	return nil
}

// Encrypt encrypts (with AES-256-GCM) a plaintext with a key stretched from
// the provided passphrase with Argon2id. The output is base64 encoded and
// carries the KDF params and the nonce.
func Encrypt(opts EncryptOpts) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}

	params, err := NewArgon2idParams(DefaultKDFTime, DefaultKDFMemory)
	if err != nil {
		return "", err
	}
	key := DeriveKey(opts.Passphrase, params)
	defer securestore.Zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return "", err
	}

	header, _ := params.MarshalBinary()
	header = append(header, nonce...)
	cyphertext := gcm.Seal(header, nonce, opts.PlainText, nil)

	return base64.StdEncoding.EncodeToString(cyphertext), nil
}

// DecryptOpts is the struct given to Decrypt method
type DecryptOpts struct {
	CypherText string
	Passphrase []byte
}

func (o DecryptOpts) validate() error {
	if len(o.CypherText) <= 0 {
		return ErrNullCypherText
	}
	data, err := base64.StdEncoding.DecodeString(o.CypherText)
	if err != nil {
		return ErrInvalidCypherText
	}
	if len(data) <= argon2idParamsLen+12 {
		return ErrInvalidCypherText
	}
	if len(o.Passphrase) <= 0 {
		return ErrNullPassphrase
	}
	return nil
}

// Decrypt decrypts a cyphertext produced by Encrypt. A wrong passphrase
// results in ErrInvalidPassphrase.
func Decrypt(opts DecryptOpts) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	data, _ := base64.StdEncoding.DecodeString(opts.CypherText)

	params := &Argon2idParams{}
	if err := params.UnmarshalBinary(data[:argon2idParamsLen]); err != nil {
		return nil, err
	}
	data = data[argon2idParamsLen:]

	key := DeriveKey(opts.Passphrase, params)
	defer securestore.Zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, ErrInvalidCypherText
	}
	nonce, text := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, text, nil)
	if err != nil {
		return nil, ErrInvalidPassphrase
	}
	return plaintext, nil
}

// DeriveKey derives a 32 byte array key from a custom passhprase
func DeriveKey(passphrase []byte, params *Argon2idParams) []byte {
	return argon2.IDKey(
		passphrase, params.Salt[:], params.Time, params.Memory, params.Threads,
		argon2idKeyLen,
	)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blockCipher)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
