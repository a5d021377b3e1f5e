package legacy

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

// EntryPath returns the path, relative to the imported root, of the key
// found at the given chain index: m/0'/0/index.
func EntryPath(chainIndex int64) (wallet.DerivationPath, error) {
	if chainIndex < 0 || chainIndex >= hdkeychain.HardenedKeyStart {
		return nil, fmt.Errorf("chain index %d out of range", chainIndex)
	}
	return wallet.DerivationPath{
		hdkeychain.HardenedKeyStart, 0, uint32(chainIndex),
	}, nil
}

// Keychain returns a keychain rooted at the imported root key and chain
// code, or a watch-only one if the file carried no private key.
func (r *ImportResult) Keychain() (*wallet.Keychain, error) {
	net := r.Header.Network
	if r.IsWatchOnly() {
		root := hdkeychain.NewExtendedKey(
			net.HDPublicKeyID[:], r.RootPublicKey.SerializeCompressed(),
			r.ChainCode, []byte{0x00, 0x00, 0x00, 0x00}, 0, 0, false,
		)
		return wallet.NewWatchOnlyKeychain(root.String(), net)
	}

	var keychain *wallet.Keychain
	err := r.RootKey.With(func(rootKey []byte) error {
		var err error
		keychain, err = wallet.NewKeychain(wallet.KeychainOpts{
			RootKey:   rootKey,
			ChainCode: r.ChainCode,
			Network:   net,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return keychain, nil
}

// EntryMismatch is a key-data entry whose hash160 is not the one of the key
// derived at its chain index.
type EntryMismatch struct {
	Entry   Entry
	Derived string
}

// VerifyEntries derives the key of every key-data entry and checks it
// against the entry's hash160. It returns how many entries matched and the
// ones that did not.
func VerifyEntries(
	keychain *wallet.Keychain, entries []Entry,
) (int, []EntryMismatch, error) {
	matched := 0
	mismatches := make([]EntryMismatch, 0)
	for _, entry := range entries {
		if entry.Type != EntryKeyData || entry.Record == nil {
			continue
		}
		path, err := EntryPath(entry.Record.ChainIndex)
		if err != nil {
			return 0, nil, err
		}
		pubkey, err := keychain.PublicKey(path)
		if err != nil {
			return 0, nil, err
		}

		compressed := btcutil.Hash160(pubkey.SerializeCompressed())
		uncompressed := btcutil.Hash160(pubkey.SerializeUncompressed())
		if bytes.Equal(entry.Hash160, compressed) ||
			bytes.Equal(entry.Hash160, uncompressed) {
			matched++
			continue
		}

		addr, err := wallet.AddressFor(pubkey, wallet.Legacy, keychain.Network())
		if err != nil {
			return 0, nil, err
		}
		mismatches = append(mismatches, EntryMismatch{
			Entry: entry, Derived: addr.EncodedAddress,
		})
	}
	return matched, mismatches, nil
}
