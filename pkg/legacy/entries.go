package legacy

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// EntryType tags the entries that follow the key generator block.
type EntryType uint8

const (
	EntryKeyData        EntryType = 0
	EntryAddressComment EntryType = 1
	EntryTxComment      EntryType = 2
	EntryDeleted        EntryType = 4
)

func (t EntryType) String() string {
	switch t {
	case EntryKeyData:
		return "key-data"
	case EntryAddressComment:
		return "address-comment"
	case EntryTxComment:
		return "tx-comment"
	case EntryDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Entry is one decoded record of the entry table. Which fields are set
// depends on Type.
type Entry struct {
	Type EntryType
	// Offset of the entry's type byte within the file.
	Offset int
	// Hash160 is set for key-data and address-comment entries.
	Hash160 []byte
	// TxID is set for tx-comment entries.
	TxID *chainhash.Hash
	// Comment is set for comment entries.
	Comment string
	// Record is set for key-data entries.
	Record *AddressRecord
	// Size is the number of zero bytes of a deleted entry.
	Size int
}

// NewKeyDataEntry returns a key-data entry for the public key found at the
// given chain index. The entry commits to the compressed key.
func NewKeyDataEntry(pubkey *btcec.PublicKey, chainIndex int64) Entry {
	hash := btcutil.Hash160(pubkey.SerializeCompressed())
	record := &AddressRecord{
		Version:    Version,
		Flags:      RecordHasPublicKey,
		ChainIndex: chainIndex,
	}
	copy(record.Hash160[:], hash)
	copy(record.PublicKey[:], pubkey.SerializeUncompressed())

	return Entry{
		Type:    EntryKeyData,
		Hash160: hash,
		Record:  record,
	}
}

// Address returns the P2PKH address committed by a key-data or
// address-comment entry.
func (e Entry) Address(net *chaincfg.Params) (string, error) {
	if e.Type != EntryKeyData && e.Type != EntryAddressComment {
		return "", fmt.Errorf("%s entry has no address", e.Type)
	}
	addr, err := btcutil.NewAddressPubKeyHash(e.Hash160, net)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// readEntry decodes the entry at the start of raw and returns how many
// bytes it spans.
func readEntry(raw []byte) (Entry, int, error) {
	entry := Entry{Type: EntryType(raw[0])}
	body := raw[1:]

	switch entry.Type {
	case EntryKeyData:
		if len(body) < hash160Size+recordSize {
			return Entry{}, 0, fmt.Errorf("%w: truncated key data", ErrMalformedEntry)
		}
		record, err := parseAddressRecord(body[hash160Size:])
		if err != nil {
			return Entry{}, 0, fmt.Errorf("%w: key data: %s", ErrMalformedEntry, err)
		}
		entry.Hash160 = append([]byte{}, body[:hash160Size]...)
		entry.Record = record
		return entry, 1 + hash160Size + recordSize, nil

	case EntryAddressComment:
		comment, n, err := readComment(body, hash160Size)
		if err != nil {
			return Entry{}, 0, err
		}
		entry.Hash160 = append([]byte{}, body[:hash160Size]...)
		entry.Comment = comment
		return entry, 1 + n, nil

	case EntryTxComment:
		comment, n, err := readComment(body, chainhash.HashSize)
		if err != nil {
			return Entry{}, 0, err
		}
		txid, _ := chainhash.NewHash(body[:chainhash.HashSize])
		entry.TxID = txid
		entry.Comment = comment
		return entry, 1 + n, nil

	case EntryDeleted:
		if len(body) < 2 {
			return Entry{}, 0, fmt.Errorf("%w: truncated deleted entry", ErrMalformedEntry)
		}
		size := int(binary.LittleEndian.Uint16(body))
		if len(body) < 2+size {
			return Entry{}, 0, fmt.Errorf("%w: truncated deleted entry", ErrMalformedEntry)
		}
		entry.Size = size
		return entry, 1 + 2 + size, nil

	default:
		return Entry{}, 0, fmt.Errorf(
			"%w: unknown type %d", ErrMalformedEntry, uint8(entry.Type),
		)
	}
}

// readComment reads a key of keyLen bytes followed by a length-prefixed
// comment.
func readComment(body []byte, keyLen int) (string, int, error) {
	if len(body) < keyLen+2 {
		return "", 0, fmt.Errorf("%w: truncated comment", ErrMalformedEntry)
	}
	size := int(binary.LittleEndian.Uint16(body[keyLen:]))
	start := keyLen + 2
	if len(body) < start+size {
		return "", 0, fmt.Errorf("%w: truncated comment", ErrMalformedEntry)
	}
	return string(body[start : start+size]), start + size, nil
}

func (e Entry) serialize() ([]byte, error) {
	buf := []byte{byte(e.Type)}

	switch e.Type {
	case EntryKeyData:
		if len(e.Hash160) != hash160Size || e.Record == nil {
			return nil, fmt.Errorf("key data entry requires hash160 and record")
		}
		buf = append(buf, e.Hash160...)
		return append(buf, e.Record.serialize()...), nil

	case EntryAddressComment:
		if len(e.Hash160) != hash160Size {
			return nil, fmt.Errorf("address comment entry requires hash160")
		}
		buf = append(buf, e.Hash160...)
		return appendComment(buf, e.Comment)

	case EntryTxComment:
		if e.TxID == nil {
			return nil, fmt.Errorf("tx comment entry requires txid")
		}
		buf = append(buf, e.TxID[:]...)
		return appendComment(buf, e.Comment)

	case EntryDeleted:
		if e.Size > math.MaxUint16 {
			return nil, fmt.Errorf("deleted entry exceeds %d bytes", math.MaxUint16)
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(e.Size))
		return append(buf, make([]byte, e.Size)...), nil

	default:
		return nil, fmt.Errorf("unknown entry type %d", uint8(e.Type))
	}
}

func appendComment(buf []byte, comment string) ([]byte, error) {
	if len(comment) > math.MaxUint16 {
		return nil, fmt.Errorf("comment exceeds %d bytes", math.MaxUint16)
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(comment)))
	return append(buf, comment...), nil
}
