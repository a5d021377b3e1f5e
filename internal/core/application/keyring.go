package application

import (
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tdex-network/btcvault/internal/core/domain"
	"github.com/tdex-network/btcvault/pkg/securestore"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

// Keyring holds the decrypted secrets of the unlocked wallets and the
// per-wallet mutexes serialising the flows that claim utxos or move
// derivation indexes. It is shared by the wallet and transaction services.
type Keyring struct {
	store securestore.SecureStorage
	locks sync.Map
}

// NewKeyring ...
func NewKeyring() *Keyring {
	return &Keyring{store: securestore.NewSecureStorage()}
}

// Close locks every wallet and zeroes their secrets.
func (k *Keyring) Close() {
	k.store.Close()
}

// lockWallet acquires the mutex of the wallet and returns its release.
func (k *Keyring) lockWallet(walletID string) func() {
	mu, _ := k.locks.LoadOrStore(walletID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

// unlock decrypts the secret of the wallet and keeps it until lock is
// called. The decrypted secret must match the wallet's fingerprint.
func (k *Keyring) unlock(w *domain.Wallet, passphrase string) error {
	if w.IsWatchOnly() {
		return domain.ErrWalletWatchOnly
	}
	if len(passphrase) <= 0 {
		return ErrNullPassphrase
	}

	secret, err := wallet.Decrypt(wallet.DecryptOpts{
		CypherText: w.EncryptedSecret,
		Passphrase: []byte(passphrase),
	})
	if err != nil {
		return err
	}
	defer securestore.Zero(secret)

	keychain, err := newKeychain(w, secret)
	if err != nil {
		return err
	}
	fingerprint := keychain.MasterFingerprint()
	keychain.Close()
	if fingerprint != w.MasterFingerprint {
		return fmt.Errorf("decrypted secret does not match wallet fingerprint")
	}

	_, err = k.store.Put(w.ID, secret)
	return err
}

func (k *Keyring) lock(walletID string) {
	k.store.Delete(walletID)
}

func (k *Keyring) isUnlocked(walletID string) bool {
	_, err := k.store.Get(walletID)
	return err == nil
}

// keychain returns a private keychain of the unlocked wallet. The caller
// must Close it.
func (k *Keyring) keychain(w *domain.Wallet) (*wallet.Keychain, error) {
	if w.IsWatchOnly() {
		return nil, domain.ErrWalletWatchOnly
	}
	scalar, err := k.store.Get(w.ID)
	if err != nil {
		if errors.Is(err, securestore.ErrScalarNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrWalletLocked, w.Name)
		}
		return nil, err
	}

	var keychain *wallet.Keychain
	err = scalar.With(func(secret []byte) error {
		var err error
		keychain, err = newKeychain(w, secret)
		return err
	})
	if err != nil {
		return nil, err
	}
	return keychain, nil
}

// newKeychain builds the keychain of a wallet from its decrypted secret: a
// BIP39 seed, or a legacy root key followed by its chain code.
func newKeychain(w *domain.Wallet, secret []byte) (*wallet.Keychain, error) {
	net, err := w.NetworkParams()
	if err != nil {
		return nil, err
	}

	opts := wallet.KeychainOpts{Network: net}
	switch w.Kind {
	case domain.KindMnemonic:
		opts.Seed = secret
	case domain.KindLegacy:
		if len(secret) != btcec.PrivKeyBytesLen+32 {
			return nil, fmt.Errorf("legacy secret must be %d bytes", btcec.PrivKeyBytesLen+32)
		}
		opts.RootKey = secret[:btcec.PrivKeyBytesLen]
		opts.ChainCode = secret[btcec.PrivKeyBytesLen:]
	default:
		return nil, domain.ErrWalletWatchOnly
	}
	return wallet.NewKeychain(opts)
}

// accountKeychain returns a public keychain rooted at the account key of
// the given address type.
func accountKeychain(
	w *domain.Wallet, addrType wallet.AddressType,
) (*wallet.Keychain, error) {
	net, err := w.NetworkParams()
	if err != nil {
		return nil, err
	}
	xpub, err := w.AccountXPub(addrType)
	if err != nil {
		return nil, err
	}
	return wallet.NewWatchOnlyKeychain(xpub, net)
}
