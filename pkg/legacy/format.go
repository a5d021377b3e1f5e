package legacy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/btcvault/pkg/legacy/romix"
)

const (
	headerSize     = 352
	cryptoSize     = 512
	kdfParamsSize  = 256
	recordSize     = 237
	checksumSize   = 4
	hash160Size    = 20
	shortLabelSize = 32
	longLabelSize  = 256

	keyGenOffset  = headerSize + cryptoSize
	entriesOffset = keyGenOffset + recordSize

	// Version is the format version written by Encode.
	Version uint32 = 2

	// CipherAES256CFB is the only cipher supported for the root key.
	CipherAES256CFB uint32 = 1
)

// Header flags.
const (
	FlagEncrypted uint64 = 1 << 0
	FlagWatchOnly uint64 = 1 << 1
)

// Address record flags.
const (
	RecordHasPrivateKey uint64 = 1 << 0
	RecordHasPublicKey  uint64 = 1 << 1
	RecordEncrypted     uint64 = 1 << 2
)

var (
	fileID = []byte{0xba, 'W', 'A', 'L', 'L', 'E', 'T', 0x00}

	supportedVersions = map[uint32]bool{1: true, 2: true}

	supportedNetworks = []*chaincfg.Params{
		&chaincfg.MainNetParams,
		&chaincfg.TestNet3Params,
	}
)

// Header holds the file-level metadata of a legacy wallet.
type Header struct {
	Version      uint32
	Network      *chaincfg.Params
	Flags        uint64
	UniqueID     [6]byte
	CreatedAt    time.Time
	ShortLabel   string
	LongLabel    string
	HighestIndex int64
}

// IsEncrypted returns whether the root private key is stored encrypted.
func (h Header) IsEncrypted() bool {
	return h.Flags&FlagEncrypted != 0
}

// IsWatchOnly returns whether the file carries public material only.
func (h Header) IsWatchOnly() bool {
	return h.Flags&FlagWatchOnly != 0
}

func parseHeader(raw []byte) (*Header, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: file too short", ErrUnsupportedFormat)
	}
	if !bytes.Equal(raw[:8], fileID) {
		return nil, fmt.Errorf("%w: bad file id", ErrUnsupportedFormat)
	}

	h := &Header{}
	h.Version = binary.LittleEndian.Uint32(raw[8:12])
	if !supportedVersions[h.Version] {
		return nil, fmt.Errorf(
			"%w: version %d", ErrUnsupportedFormat, h.Version,
		)
	}

	magic := wire.BitcoinNet(binary.LittleEndian.Uint32(raw[12:16]))
	h.Flags = binary.LittleEndian.Uint64(raw[16:24])
	copy(h.UniqueID[:], raw[24:30])

	net, err := networkFromMagic(magic, h.UniqueID[5])
	if err != nil {
		return nil, err
	}
	h.Network = net

	h.CreatedAt = time.Unix(int64(binary.LittleEndian.Uint64(raw[30:38])), 0)
	h.ShortLabel = string(bytes.TrimRight(raw[38:70], "\x00"))
	h.LongLabel = string(bytes.TrimRight(raw[70:326], "\x00"))
	h.HighestIndex = int64(binary.LittleEndian.Uint64(raw[326:334]))

	return h, nil
}

func (h Header) serialize() ([]byte, error) {
	if h.Network == nil {
		return nil, fmt.Errorf("network must not be null")
	}
	if len(h.ShortLabel) > shortLabelSize {
		return nil, fmt.Errorf("short label exceeds %d bytes", shortLabelSize)
	}
	if len(h.LongLabel) > longLabelSize {
		return nil, fmt.Errorf("long label exceeds %d bytes", longLabelSize)
	}

	buf := make([]byte, headerSize)
	copy(buf, fileID)
	binary.LittleEndian.PutUint32(buf[8:], h.Version)
	binary.LittleEndian.PutUint32(buf[12:], uint32(h.Network.Net))
	binary.LittleEndian.PutUint64(buf[16:], h.Flags)
	copy(buf[24:29], h.UniqueID[:5])
	buf[29] = h.Network.PubKeyHashAddrID
	binary.LittleEndian.PutUint64(buf[30:], uint64(h.CreatedAt.Unix()))
	copy(buf[38:70], h.ShortLabel)
	copy(buf[70:326], h.LongLabel)
	binary.LittleEndian.PutUint64(buf[326:], uint64(h.HighestIndex))
	return buf, nil
}

func networkFromMagic(
	magic wire.BitcoinNet, netByte byte,
) (*chaincfg.Params, error) {
	for _, net := range supportedNetworks {
		if net.Net != magic {
			continue
		}
		if net.PubKeyHashAddrID != netByte {
			return nil, fmt.Errorf(
				"%w: network byte %#02x does not match %s magic",
				ErrUnsupportedFormat, netByte, net.Name,
			)
		}
		return net, nil
	}
	return nil, fmt.Errorf(
		"%w: unknown network magic %#08x", ErrUnsupportedFormat, uint32(magic),
	)
}

type cryptoSection struct {
	kdf            romix.Params
	cipher         uint32
	keyGenChecksum [checksumSize]byte
}

// The KDF params are meaningful only for encrypted files.
func parseCryptoSection(raw []byte, encrypted bool) (*cryptoSection, error) {
	c := &cryptoSection{}
	kdf, params := raw[:kdfParamsSize], raw[kdfParamsSize:]

	c.cipher = binary.LittleEndian.Uint32(params[0:4])
	copy(c.keyGenChecksum[:], params[4:8])

	if !encrypted {
		return c, nil
	}

	if !bytes.Equal(checksum(kdf[:44]), kdf[44:48]) {
		return nil, fmt.Errorf("%w: kdf params", ErrChecksumMismatch)
	}
	c.kdf.Memory = binary.LittleEndian.Uint64(kdf[0:8])
	c.kdf.Iterations = binary.LittleEndian.Uint32(kdf[8:12])
	copy(c.kdf.Salt[:], kdf[12:44])

	if c.cipher != CipherAES256CFB {
		return nil, fmt.Errorf("%w: cipher id %d", ErrUnsupportedFormat, c.cipher)
	}
	if c.kdf.Memory > romix.MaxMemory ||
		c.kdf.Iterations > romix.MaxIterations {
		return nil, fmt.Errorf("%w: kdf params too costly", ErrUnsupportedFormat)
	}
	return c, nil
}

func (c cryptoSection) serialize(encrypted bool) []byte {
	buf := make([]byte, cryptoSize)
	if encrypted {
		binary.LittleEndian.PutUint64(buf[0:], c.kdf.Memory)
		binary.LittleEndian.PutUint32(buf[8:], c.kdf.Iterations)
		copy(buf[12:44], c.kdf.Salt[:])
		copy(buf[44:48], checksum(buf[:44]))
	}
	binary.LittleEndian.PutUint32(buf[kdfParamsSize:], c.cipher)
	copy(buf[kdfParamsSize+4:], c.keyGenChecksum[:])
	return buf
}

// AddressRecord is the fixed-size key record used both for the root key
// generator and for key-data entries.
type AddressRecord struct {
	Hash160    [hash160Size]byte
	Version    uint32
	Flags      uint64
	ChainCode  [32]byte
	ChainIndex int64
	Depth      int64
	IV         [16]byte
	// PrivateKey is the ciphertext when the record is encrypted.
	PrivateKey [32]byte
	// PublicKey is the uncompressed serialization.
	PublicKey  [65]byte
	FirstSeen  uint64
	LastSeen   uint64
	FirstBlock uint32
	LastBlock  uint32
}

// HasPrivateKey ...
func (r *AddressRecord) HasPrivateKey() bool {
	return r.Flags&RecordHasPrivateKey != 0
}

// IsEncrypted ...
func (r *AddressRecord) IsEncrypted() bool {
	return r.Flags&RecordEncrypted != 0
}

// PubKey parses the stored public key.
func (r *AddressRecord) PubKey() (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(r.PublicKey[:])
}

// Every checksummed field is followed by the checksum of its stored bytes.
func parseAddressRecord(raw []byte) (*AddressRecord, error) {
	if len(raw) < recordSize {
		return nil, fmt.Errorf("%w: address record truncated", ErrUnsupportedFormat)
	}

	fields := []struct {
		name       string
		start, end int
	}{
		{"hash160", 0, 20},
		{"chain code", 36, 68},
		{"iv", 88, 104},
		{"private key", 108, 140},
		{"public key", 144, 209},
	}
	for _, f := range fields {
		chk := raw[f.end : f.end+checksumSize]
		if !bytes.Equal(checksum(raw[f.start:f.end]), chk) {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, f.name)
		}
	}

	r := &AddressRecord{}
	copy(r.Hash160[:], raw[0:20])
	r.Version = binary.LittleEndian.Uint32(raw[24:28])
	r.Flags = binary.LittleEndian.Uint64(raw[28:36])
	copy(r.ChainCode[:], raw[36:68])
	r.ChainIndex = int64(binary.LittleEndian.Uint64(raw[72:80]))
	r.Depth = int64(binary.LittleEndian.Uint64(raw[80:88]))
	copy(r.IV[:], raw[88:104])
	copy(r.PrivateKey[:], raw[108:140])
	copy(r.PublicKey[:], raw[144:209])
	r.FirstSeen = binary.LittleEndian.Uint64(raw[213:221])
	r.LastSeen = binary.LittleEndian.Uint64(raw[221:229])
	r.FirstBlock = binary.LittleEndian.Uint32(raw[229:233])
	r.LastBlock = binary.LittleEndian.Uint32(raw[233:237])
	return r, nil
}

func (r *AddressRecord) serialize() []byte {
	buf := make([]byte, recordSize)
	copy(buf[0:20], r.Hash160[:])
	copy(buf[20:24], checksum(r.Hash160[:]))
	binary.LittleEndian.PutUint32(buf[24:], r.Version)
	binary.LittleEndian.PutUint64(buf[28:], r.Flags)
	copy(buf[36:68], r.ChainCode[:])
	copy(buf[68:72], checksum(r.ChainCode[:]))
	binary.LittleEndian.PutUint64(buf[72:], uint64(r.ChainIndex))
	binary.LittleEndian.PutUint64(buf[80:], uint64(r.Depth))
	copy(buf[88:104], r.IV[:])
	copy(buf[104:108], checksum(r.IV[:]))
	copy(buf[108:140], r.PrivateKey[:])
	copy(buf[140:144], checksum(r.PrivateKey[:]))
	copy(buf[144:209], r.PublicKey[:])
	copy(buf[209:213], checksum(r.PublicKey[:]))
	binary.LittleEndian.PutUint64(buf[213:], r.FirstSeen)
	binary.LittleEndian.PutUint64(buf[221:], r.LastSeen)
	binary.LittleEndian.PutUint32(buf[229:], r.FirstBlock)
	binary.LittleEndian.PutUint32(buf[233:], r.LastBlock)
	return buf
}

// commitsTo returns whether the stored hash160 is the hash of the given
// public key, in either serialization.
func (r *AddressRecord) commitsTo(pubkey *btcec.PublicKey) bool {
	return bytes.Equal(r.Hash160[:], btcutil.Hash160(pubkey.SerializeUncompressed())) ||
		bytes.Equal(r.Hash160[:], btcutil.Hash160(pubkey.SerializeCompressed()))
}

func checksum(b []byte) []byte {
	return chainhash.DoubleHashB(b)[:checksumSize]
}
