package wallet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// KeychainOpts is the struct given to NewKeychain. Either Seed or the
// RootKey/ChainCode pair must be set.
type KeychainOpts struct {
	Seed      []byte
	RootKey   []byte
	ChainCode []byte
	Network   *chaincfg.Params
}

func (o KeychainOpts) validate() error {
	if o.Network == nil {
		return ErrNullNetwork
	}
	if len(o.Seed) <= 0 && len(o.RootKey) <= 0 {
		return ErrNullSeed
	}
	if len(o.Seed) > 0 {
		if len(o.Seed) < hdkeychain.MinSeedBytes ||
			len(o.Seed) > hdkeychain.MaxSeedBytes {
			return ErrInvalidSeedLength
		}
		return nil
	}
	if len(o.RootKey) != btcec.PrivKeyBytesLen {
		return ErrNullRootKey
	}
	if len(o.ChainCode) != 32 {
		return ErrInvalidChainCode
	}
	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(o.RootKey); overflow || scalar.IsZero() {
		scalar.Zero()
		return fmt.Errorf("root key is not a valid secp256k1 scalar")
	}
	scalar.Zero()
	return nil
}

// Keychain derives BIP32 key trees from a seed or from an imported root key
// and chain code. Derived nodes are memoized by path until Close.
type Keychain struct {
	lock sync.Mutex

	root        *hdkeychain.ExtendedKey
	net         *chaincfg.Params
	fingerprint uint32
	cache       map[string]*hdkeychain.ExtendedKey
	closed      bool
}

// NewKeychain returns a private keychain rooted at the BIP32 master derived
// from the seed, or at (RootKey, ChainCode) taken as a depth-0 node.
func NewKeychain(opts KeychainOpts) (*Keychain, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var root *hdkeychain.ExtendedKey
	if len(opts.Seed) > 0 {
		var err error
		if root, err = hdkeychain.NewMaster(opts.Seed, opts.Network); err != nil {
			return nil, err
		}
	} else {
		key := append([]byte{}, opts.RootKey...)
		chainCode := append([]byte{}, opts.ChainCode...)
		root = hdkeychain.NewExtendedKey(
			opts.Network.HDPrivateKeyID[:], key, chainCode,
			[]byte{0x00, 0x00, 0x00, 0x00}, 0, 0, true,
		)
	}

	return newKeychain(root, opts.Network)
}

// NewWatchOnlyKeychain returns a public-only keychain rooted at the given
// extended public key. Paths given to Derive are relative to that key.
func NewWatchOnlyKeychain(
	xpub string, net *chaincfg.Params,
) (*Keychain, error) {
	if net == nil {
		return nil, ErrNullNetwork
	}
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return nil, err
	}
	if !key.IsForNet(net) {
		return nil, fmt.Errorf("extended key is not for network %s", net.Name)
	}
	if key.IsPrivate() {
		if key, err = key.Neuter(); err != nil {
			return nil, err
		}
	}
	return newKeychain(key, net)
}

func newKeychain(
	root *hdkeychain.ExtendedKey, net *chaincfg.Params,
) (*Keychain, error) {
	pubkey, err := root.ECPubKey()
	if err != nil {
		return nil, err
	}
	fp := btcutil.Hash160(pubkey.SerializeCompressed())[:4]

	return &Keychain{
		root:        root,
		net:         net,
		fingerprint: binary.LittleEndian.Uint32(fp),
		cache:       make(map[string]*hdkeychain.ExtendedKey),
	}, nil
}

// Network returns the chain params the keychain was created for.
func (k *Keychain) Network() *chaincfg.Params {
	return k.net
}

// IsWatchOnly returns whether the keychain lacks private key material.
func (k *Keychain) IsWatchOnly() bool {
	return !k.root.IsPrivate()
}

// MasterFingerprint returns the first 4 bytes of the root public key hash,
// in the little-endian integer form used by PSBT derivation records.
func (k *Keychain) MasterFingerprint() uint32 {
	return k.fingerprint
}

// Root returns the depth-0 extended key.
func (k *Keychain) Root() (*hdkeychain.ExtendedKey, error) {
	k.lock.Lock()
	defer k.lock.Unlock()

	if k.closed {
		return nil, ErrKeychainClosed
	}
	return k.root, nil
}

// Derive returns the extended key at the given path. The result is cached
// and remains owned by the keychain: it is zeroed by Close.
func (k *Keychain) Derive(path DerivationPath) (*hdkeychain.ExtendedKey, error) {
	k.lock.Lock()
	defer k.lock.Unlock()

	if k.closed {
		return nil, ErrKeychainClosed
	}
	if len(path) <= 0 {
		return k.root, nil
	}

	id := path.String()
	if node, ok := k.cache[id]; ok {
		return node, nil
	}

	// Start from the deepest cached ancestor.
	node, start := k.root, 0
	for i := len(path) - 1; i > 0; i-- {
		if cached, ok := k.cache[path[:i].String()]; ok {
			node, start = cached, i
			break
		}
	}

	parentOwned := true
	for _, step := range path[start:] {
		if step >= hdkeychain.HardenedKeyStart && !node.IsPrivate() {
			if !parentOwned {
				node.Zero()
			}
			return nil, fmt.Errorf(
				"%w: hardened step at %s", ErrDerivationUnavailable, path,
			)
		}
		child, err := node.Derive(step)
		if !parentOwned {
			node.Zero()
		}
		if err != nil {
			if errors.Is(err, hdkeychain.ErrDeriveHardFromPublic) {
				return nil, ErrDerivationUnavailable
			}
			return nil, err
		}
		node, parentOwned = child, false
	}

	k.cache[id] = node
	return node, nil
}

// PrivateKey derives the private key at the given path.
func (k *Keychain) PrivateKey(path DerivationPath) (*btcec.PrivateKey, error) {
	node, err := k.Derive(path)
	if err != nil {
		return nil, err
	}
	key, err := node.ECPrivKey()
	if err != nil {
		if errors.Is(err, hdkeychain.ErrNotPrivExtKey) {
			return nil, ErrDerivationUnavailable
		}
		return nil, err
	}
	return key, nil
}

// PublicKey derives the public key at the given path.
func (k *Keychain) PublicKey(path DerivationPath) (*btcec.PublicKey, error) {
	node, err := k.Derive(path)
	if err != nil {
		return nil, err
	}
	return node.ECPubKey()
}

// ExtendedPublicKey returns the base58 extended public key at the given path.
func (k *Keychain) ExtendedPublicKey(path DerivationPath) (string, error) {
	node, err := k.Derive(path)
	if err != nil {
		return "", err
	}
	xpub, err := node.Neuter()
	if err != nil {
		return "", err
	}
	return xpub.String(), nil
}

// Neuter returns a watch-only keychain for the public branch at the given
// path. The path above the branch point may be hardened since it is derived
// here, with the private parent.
func (k *Keychain) Neuter(path DerivationPath) (*Keychain, error) {
	xpub, err := k.ExtendedPublicKey(path)
	if err != nil {
		return nil, err
	}
	watchOnly, err := NewWatchOnlyKeychain(xpub, k.net)
	if err != nil {
		return nil, err
	}
	watchOnly.fingerprint = k.fingerprint
	return watchOnly, nil
}

// Close zeroes the root and every cached node. The keychain is unusable
// afterwards.
func (k *Keychain) Close() {
	k.lock.Lock()
	defer k.lock.Unlock()

	if k.closed {
		return
	}
	for id, node := range k.cache {
		node.Zero()
		delete(k.cache, id)
	}
	k.root.Zero()
	k.closed = true
}
