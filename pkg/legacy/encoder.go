package legacy

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// EncodeOpts is the struct given to Encode.
type EncodeOpts struct {
	Network       *chaincfg.Params
	Version       uint32
	RootPublicKey *btcec.PublicKey
	ChainCode     []byte
	ShortLabel    string
	LongLabel     string
	CreatedAt     time.Time
	HighestIndex  int64
	Entries       []Entry
}

func (o EncodeOpts) validate() error {
	if o.Network == nil {
		return fmt.Errorf("network must not be null")
	}
	if o.Version != 0 && !supportedVersions[o.Version] {
		return fmt.Errorf("%w: version %d", ErrUnsupportedFormat, o.Version)
	}
	if o.RootPublicKey == nil {
		return fmt.Errorf("root public key must not be null")
	}
	if len(o.ChainCode) != 32 {
		return fmt.Errorf("chain code must be 32 bytes long")
	}
	return nil
}

// Encode serializes a watch-only legacy wallet file. The root private key
// never leaves the wallet in this format.
func Encode(opts EncodeOpts) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	version := opts.Version
	if version == 0 {
		version = Version
	}

	header := Header{
		Version:      version,
		Network:      opts.Network,
		Flags:        FlagWatchOnly,
		CreatedAt:    opts.CreatedAt,
		ShortLabel:   opts.ShortLabel,
		LongLabel:    opts.LongLabel,
		HighestIndex: opts.HighestIndex,
	}
	if _, err := rand.Read(header.UniqueID[:5]); err != nil {
		return nil, err
	}
	headerBytes, err := header.serialize()
	if err != nil {
		return nil, err
	}

	record := &AddressRecord{
		Version:    version,
		Flags:      RecordHasPublicKey,
		ChainIndex: -1,
	}
	copy(record.ChainCode[:], opts.ChainCode)
	pubkey := opts.RootPublicKey.SerializeUncompressed()
	copy(record.PublicKey[:], pubkey)
	copy(record.Hash160[:], btcutil.Hash160(pubkey))

	recordBytes := record.serialize()
	crypto := cryptoSection{}
	copy(crypto.keyGenChecksum[:], checksum(recordBytes))

	raw := make([]byte, 0, entriesOffset)
	raw = append(raw, headerBytes...)
	raw = append(raw, crypto.serialize(false)...)
	raw = append(raw, recordBytes...)

	for i, entry := range opts.Entries {
		entryBytes, err := entry.serialize()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		raw = append(raw, entryBytes...)
	}
	return raw, nil
}
