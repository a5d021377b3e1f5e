// Package legacytest builds legacy wallet files that carry the root private
// key, in plaintext or encrypted with the legacy KDF. Only tests import it.
package legacytest

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/tdex-network/btcvault/pkg/legacy"
	"github.com/tdex-network/btcvault/pkg/legacy/romix"
)

const (
	headerSize   = 352
	keyGenOffset = headerSize + 512
	recordSize   = 237
)

// DefaultKDFParams are used when Opts.KDF is nil.
var DefaultKDFParams = romix.Params{
	Memory:     4096,
	Iterations: 2,
}

// Opts extends legacy.EncodeOpts with the root private key. RootPublicKey is
// derived from RootKey when left empty.
type Opts struct {
	legacy.EncodeOpts
	RootKey []byte
	// Passphrase, if set, encrypts the root key.
	Passphrase []byte
	KDF        *romix.Params
}

// Encode serializes a legacy wallet file holding opts.RootKey. Without a root
// key it falls back to a watch-only file.
func Encode(opts Opts) ([]byte, error) {
	if len(opts.RootKey) <= 0 {
		return legacy.Encode(opts.EncodeOpts)
	}
	if len(opts.RootKey) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("root key must be %d bytes", btcec.PrivKeyBytesLen)
	}

	encodeOpts := opts.EncodeOpts
	if encodeOpts.RootPublicKey == nil {
		_, pubkey := btcec.PrivKeyFromBytes(opts.RootKey)
		encodeOpts.RootPublicKey = pubkey
	}
	raw, err := legacy.Encode(encodeOpts)
	if err != nil {
		return nil, err
	}

	encrypted := len(opts.Passphrase) > 0
	headerFlags := binary.LittleEndian.Uint64(raw[16:24])
	headerFlags &^= legacy.FlagWatchOnly
	if encrypted {
		headerFlags |= legacy.FlagEncrypted
	}
	binary.LittleEndian.PutUint64(raw[16:24], headerFlags)

	crypto := raw[headerSize:keyGenOffset]
	record := raw[keyGenOffset : keyGenOffset+recordSize]
	recordFlags := binary.LittleEndian.Uint64(record[28:36])
	recordFlags |= legacy.RecordHasPrivateKey

	privkey := record[108:140]
	if encrypted {
		kdf := DefaultKDFParams
		if opts.KDF != nil {
			kdf = *opts.KDF
		}
		if kdf.Salt == [32]byte{} {
			if _, err := rand.Read(kdf.Salt[:]); err != nil {
				return nil, err
			}
		}
		iv := record[88:104]
		if _, err := rand.Read(iv); err != nil {
			return nil, err
		}
		copy(record[104:108], checksum(iv))

		key, err := romix.DeriveKey(opts.Passphrase, kdf)
		if err != nil {
			return nil, err
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		cipher.NewCFBEncrypter(block, iv).XORKeyStream(privkey, opts.RootKey)

		binary.LittleEndian.PutUint64(crypto[0:8], kdf.Memory)
		binary.LittleEndian.PutUint32(crypto[8:12], kdf.Iterations)
		copy(crypto[12:44], kdf.Salt[:])
		copy(crypto[44:48], checksum(crypto[:44]))
		binary.LittleEndian.PutUint32(crypto[256:260], legacy.CipherAES256CFB)
		recordFlags |= legacy.RecordEncrypted
	} else {
		copy(privkey, opts.RootKey)
	}
	copy(record[140:144], checksum(privkey))
	binary.LittleEndian.PutUint64(record[28:36], recordFlags)
	copy(crypto[260:264], checksum(record))

	return raw, nil
}

func checksum(b []byte) []byte {
	return chainhash.DoubleHashB(b)[:4]
}
