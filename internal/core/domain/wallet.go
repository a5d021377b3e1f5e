package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

// WalletKind tells where the key material of a wallet comes from.
type WalletKind int

const (
	// KindMnemonic wallets are rooted at the BIP39 seed of a mnemonic.
	KindMnemonic WalletKind = iota
	// KindLegacy wallets are rooted at the root key imported from a legacy
	// wallet file.
	KindLegacy
	// KindLegacyWatchOnly wallets only know the imported root public key.
	KindLegacyWatchOnly
)

var walletKindNames = map[WalletKind]string{
	KindMnemonic:        "mnemonic",
	KindLegacy:          "legacy",
	KindLegacyWatchOnly: "legacy-watch-only",
}

func (k WalletKind) String() string {
	if name, ok := walletKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// AddressInfo is an address derived by, or imported into, a wallet.
type AddressInfo struct {
	Address        string
	Script         []byte
	Type           wallet.AddressType
	DerivationPath string
	// PubKey is the compressed key of the address, unset when unknown.
	PubKey []byte
	Change bool
	Label  string
	// TapMerkleRoot is set for Taproot addresses committing to leaf scripts.
	TapMerkleRoot []byte
}

// Wallet is the persisted record of a wallet: its encrypted secret and the
// state of its address derivation.
type Wallet struct {
	ID      string
	Name    string
	Network string
	Kind    WalletKind
	// EncryptedSecret is the Argon2id/AES-GCM cyphertext of the seed, or of
	// the legacy root key followed by its chain code.
	EncryptedSecret string
	// RootXPub is set for watch-only wallets only.
	RootXPub          string
	MasterFingerprint uint32
	// AccountXPubs are the extended public keys of account 0 of every
	// address type, used to derive addresses while the wallet is locked.
	AccountXPubs map[wallet.AddressType]string
	// NextExternalIndex and NextInternalIndex are keyed by address type.
	NextExternalIndex map[wallet.AddressType]uint32
	NextInternalIndex map[wallet.AddressType]uint32
	Addresses         []AddressInfo
	// Labels are keyed by address or by txid.
	Labels    map[string]string
	CreatedAt int64
}

// NewWallet returns a wallet with no derived address.
func NewWallet(
	id, name, network string, kind WalletKind,
	encryptedSecret, rootXPub string, fingerprint uint32, createdAt int64,
) (*Wallet, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNullWalletName
	}
	if _, err := wallet.NetworkFromName(network); err != nil {
		return nil, err
	}
	if kind == KindLegacyWatchOnly {
		if rootXPub == "" {
			return nil, ErrNullSecret
		}
	} else if encryptedSecret == "" {
		return nil, ErrNullSecret
	}

	return &Wallet{
		ID:                id,
		Name:              name,
		Network:           network,
		Kind:              kind,
		EncryptedSecret:   encryptedSecret,
		RootXPub:          rootXPub,
		MasterFingerprint: fingerprint,
		AccountXPubs:      make(map[wallet.AddressType]string),
		NextExternalIndex: make(map[wallet.AddressType]uint32),
		NextInternalIndex: make(map[wallet.AddressType]uint32),
		Addresses:         make([]AddressInfo, 0),
		Labels:            make(map[string]string),
		CreatedAt:         createdAt,
	}, nil
}

// IsWatchOnly ...
func (w *Wallet) IsWatchOnly() bool {
	return w.Kind == KindLegacyWatchOnly
}

// NetworkParams returns the chain params of the wallet's network.
func (w *Wallet) NetworkParams() (*chaincfg.Params, error) {
	return wallet.NetworkFromName(w.Network)
}

// AccountXPub returns the account extended public key of the given address
// type.
func (w *Wallet) AccountXPub(addrType wallet.AddressType) (string, error) {
	xpub, ok := w.AccountXPubs[addrType]
	if !ok || xpub == "" {
		return "", fmt.Errorf(
			"%w: no %s account", wallet.ErrDerivationUnavailable, addrType,
		)
	}
	return xpub, nil
}

// NextAddressPath returns the derivation path of the next address of the
// given type and branch, and moves the branch index forward.
func (w *Wallet) NextAddressPath(
	addrType wallet.AddressType, change bool,
) (wallet.DerivationPath, error) {
	if w.IsWatchOnly() {
		return nil, fmt.Errorf(
			"%w: account keys of a watch-only wallet are hardened",
			wallet.ErrDerivationUnavailable,
		)
	}
	net, err := w.NetworkParams()
	if err != nil {
		return nil, err
	}

	indexes, branch := w.NextExternalIndex, wallet.ExternalChain
	if change {
		indexes, branch = w.NextInternalIndex, wallet.InternalChain
	}
	if indexes == nil {
		indexes = make(map[wallet.AddressType]uint32)
		if change {
			w.NextInternalIndex = indexes
		} else {
			w.NextExternalIndex = indexes
		}
	}

	path, err := wallet.AddressPath(addrType, net, 0, branch, indexes[addrType])
	if err != nil {
		return nil, err
	}
	indexes[addrType]++
	return path, nil
}

// AddAddress registers an address. Adding an address twice is a no-op.
func (w *Wallet) AddAddress(info AddressInfo) {
	if _, ok := w.GetAddress(info.Address); ok {
		return
	}
	w.Addresses = append(w.Addresses, info)
}

// GetAddress ...
func (w *Wallet) GetAddress(addr string) (*AddressInfo, bool) {
	for i := range w.Addresses {
		if w.Addresses[i].Address == addr {
			info := w.Addresses[i]
			info.Label = w.Labels[addr]
			return &info, true
		}
	}
	return nil, false
}

// ListAddresses returns the addresses of the wallet, labelled, in
// derivation order. A nil addrType returns all of them.
func (w *Wallet) ListAddresses(addrType *wallet.AddressType) []AddressInfo {
	list := make([]AddressInfo, 0, len(w.Addresses))
	for _, info := range w.Addresses {
		if addrType != nil && info.Type != *addrType {
			continue
		}
		info.Label = w.Labels[info.Address]
		list = append(list, info)
	}
	return list
}

// AddressList returns the encoded addresses of the wallet.
func (w *Wallet) AddressList() []string {
	list := make([]string, 0, len(w.Addresses))
	for _, info := range w.Addresses {
		list = append(list, info.Address)
	}
	return list
}

// SetLabel labels an address of the wallet or a txid. An empty label
// removes the existing one.
func (w *Wallet) SetLabel(key, label string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("label key must not be null")
	}
	if w.Labels == nil {
		w.Labels = make(map[string]string)
	}
	if label == "" {
		delete(w.Labels, key)
		return nil
	}
	w.Labels[key] = label
	return nil
}

// LabelKeys returns the labelled keys in lexicographic order.
func (w *Wallet) LabelKeys() []string {
	keys := make([]string, 0, len(w.Labels))
	for k := range w.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
