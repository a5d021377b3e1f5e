package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/btcvault/internal/core/domain"
	"github.com/tdex-network/btcvault/internal/core/ports"
	"github.com/tdex-network/btcvault/pkg/legacy"
	"github.com/tdex-network/btcvault/pkg/securestore"
	"github.com/tdex-network/btcvault/pkg/stats"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

const (
	// DefaultGapLimit is the number of consecutive unused addresses after
	// which RestoreWallet stops the discovery of a branch.
	DefaultGapLimit = 20
	mnemonicEntropy = 256
)

var (
	// ErrNoUtxoFeed ...
	ErrNoUtxoFeed = errors.New("utxo feed is not configured")
)

type WalletService interface {
	GenSeed(ctx context.Context) ([]string, error)
	CreateWallet(
		ctx context.Context, name string, mnemonic []string, passphrase string,
	) (*WalletInfo, error)
	RestoreWallet(
		ctx context.Context, name string, mnemonic []string, passphrase string,
		gapLimit int,
	) (*WalletInfo, error)
	ImportLegacyWallet(
		ctx context.Context, name string, file []byte,
		filePassphrase, passphrase string,
	) (*ImportLegacyResult, error)
	ExportLegacyWallet(ctx context.Context, wallet string) ([]byte, error)
	UnlockWallet(ctx context.Context, wallet, passphrase string) error
	LockWallet(ctx context.Context, wallet string) error
	GetWallet(ctx context.Context, wallet string) (*WalletInfo, error)
	ListWallets(ctx context.Context) ([]WalletInfo, error)
	DeriveAddresses(
		ctx context.Context, wallet string, addrType wallet.AddressType,
		change bool, num int,
	) ([]domain.AddressInfo, error)
	DeriveTaprootScriptAddress(
		ctx context.Context, wallet string, change bool, leafScripts [][]byte,
	) (*domain.AddressInfo, error)
	ListAddresses(
		ctx context.Context, wallet string, addrType *wallet.AddressType,
	) ([]domain.AddressInfo, error)
	GetDescriptors(ctx context.Context, wallet string) ([]string, error)
	SetLabel(ctx context.Context, wallet, key, label string) error
	SyncUtxos(ctx context.Context, wallet string) (*SyncResult, error)
	ListUtxos(ctx context.Context, wallet string) ([]domain.Utxo, error)
	GetBalance(ctx context.Context, wallet string) (*Balance, error)
}

type walletService struct {
	repoManager ports.RepoManager
	keyring     *Keyring
	utxoFeed    ports.UtxoFeed
	network     *chaincfg.Params
	metrics     *stats.Metrics
}

// NewWalletService returns the wallet service for the given network. The
// utxo feed and the metrics are optional.
func NewWalletService(
	repoManager ports.RepoManager,
	keyring *Keyring,
	utxoFeed ports.UtxoFeed,
	network *chaincfg.Params,
	metrics *stats.Metrics,
) WalletService {
	return &walletService{
		repoManager: repoManager,
		keyring:     keyring,
		utxoFeed:    utxoFeed,
		network:     network,
		metrics:     metrics,
	}
}

func (s *walletService) GenSeed(ctx context.Context) ([]string, error) {
	return wallet.NewMnemonic(wallet.NewMnemonicOpts{EntropySize: mnemonicEntropy})
}

func (s *walletService) CreateWallet(
	ctx context.Context, name string, mnemonic []string, passphrase string,
) (*WalletInfo, error) {
	w, err := s.newMnemonicWallet(name, mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	if err := s.repoManager.WalletRepository().AddWallet(ctx, w); err != nil {
		return nil, err
	}

	log.Infof("created wallet %s (%s)", w.Name, w.ID)
	return s.walletInfo(w), nil
}

// RestoreWallet creates a wallet from an existing mnemonic and discovers
// its addresses holding funds, branch by branch, until gapLimit
// consecutive addresses are unused.
func (s *walletService) RestoreWallet(
	ctx context.Context, name string, mnemonic []string, passphrase string,
	gapLimit int,
) (*WalletInfo, error) {
	if s.utxoFeed == nil {
		return nil, ErrNoUtxoFeed
	}
	if gapLimit <= 0 {
		gapLimit = DefaultGapLimit
	}

	w, err := s.newMnemonicWallet(name, mnemonic, passphrase)
	if err != nil {
		return nil, err
	}

	for _, addrType := range wallet.AddressTypes() {
		for _, change := range []bool{false, true} {
			if err := s.discoverAddresses(ctx, w, addrType, change, gapLimit); err != nil {
				return nil, fmt.Errorf("discovering %s addresses: %w", addrType, err)
			}
		}
	}

	if err := s.repoManager.WalletRepository().AddWallet(ctx, w); err != nil {
		return nil, err
	}
	log.Infof(
		"restored wallet %s (%s) with %d used addresses",
		w.Name, w.ID, len(w.Addresses),
	)

	if _, err := s.SyncUtxos(ctx, w.ID); err != nil {
		log.WithError(err).Warn("failed to sync utxos of restored wallet")
	}
	return s.walletInfo(w), nil
}

// ImportLegacyWallet decodes a legacy wallet file and stores its key
// material, re-encrypted with passphrase, as a new wallet. The entry table
// addresses and comments are imported as addresses and labels.
func (s *walletService) ImportLegacyWallet(
	ctx context.Context, name string, file []byte,
	filePassphrase, passphrase string,
) (result *ImportLegacyResult, err error) {
	defer func() {
		switch {
		case err != nil:
			s.metrics.LegacyImport(stats.ImportFailed)
		case result.Partial != nil:
			s.metrics.LegacyImport(stats.ImportPartial)
		default:
			s.metrics.LegacyImport(stats.ImportSucceeded)
		}
	}()

	res, err := legacy.Decode(file, []byte(filePassphrase))
	if err != nil {
		return nil, err
	}
	defer res.Close()

	keychain, err := res.Keychain()
	if err != nil {
		return nil, err
	}
	defer keychain.Close()

	net := res.Header.Network
	result = &ImportLegacyResult{Partial: res.Partial}

	var w *domain.Wallet
	if res.IsWatchOnly() {
		root, err := keychain.Root()
		if err != nil {
			return nil, err
		}
		w, err = domain.NewWallet(
			uuid.New().String(), name, net.Name, domain.KindLegacyWatchOnly,
			"", root.String(), keychain.MasterFingerprint(), time.Now().Unix(),
		)
		if err != nil {
			return nil, err
		}
	} else {
		if len(passphrase) <= 0 {
			return nil, ErrNullPassphrase
		}

		matched, mismatches, err := legacy.VerifyEntries(keychain, res.Entries)
		if err != nil {
			return nil, err
		}
		result.Verified, result.Mismatches = matched, mismatches
		if len(mismatches) > 0 {
			log.Warnf(
				"legacy import: %d entries do not match the keys derived from "+
					"the root", len(mismatches),
			)
		}

		encryptedSecret, err := encryptLegacySecret(res, passphrase)
		if err != nil {
			return nil, err
		}
		w, err = domain.NewWallet(
			uuid.New().String(), name, net.Name, domain.KindLegacy,
			encryptedSecret, "", keychain.MasterFingerprint(), time.Now().Unix(),
		)
		if err != nil {
			return nil, err
		}
		if err := addAccountXPubs(w, keychain); err != nil {
			return nil, err
		}
	}

	imported, err := importEntries(w, res.Entries, net)
	if err != nil {
		return nil, err
	}
	result.Imported = imported

	if err := s.repoManager.WalletRepository().AddWallet(ctx, w); err != nil {
		return nil, err
	}

	if res.Partial != nil {
		log.Warnf(
			"legacy import: entry table decoded up to offset %d, %d bytes skipped",
			res.Partial.Offset, res.Partial.SkippedBytes,
		)
	}
	log.Infof(
		"imported %s legacy wallet %s (%s) with %d addresses",
		w.Kind, w.Name, w.ID, imported,
	)

	result.Wallet = *s.walletInfo(w)
	return result, nil
}

// ExportLegacyWallet serializes an imported legacy wallet back to the
// legacy file format as a watch-only file. Only the root public key and
// chain code are exported, the wallet must be unlocked unless it is
// watch-only.
func (s *walletService) ExportLegacyWallet(
	ctx context.Context, walletName string,
) ([]byte, error) {
	w, err := s.getWallet(ctx, walletName)
	if err != nil {
		return nil, err
	}
	if w.Kind == domain.KindMnemonic {
		return nil, fmt.Errorf("wallet %s was not imported from a legacy file", w.Name)
	}
	net, err := w.NetworkParams()
	if err != nil {
		return nil, err
	}

	entries, err := exportEntries(w)
	if err != nil {
		return nil, err
	}
	opts := legacy.EncodeOpts{
		Network:    net,
		ShortLabel: w.Name,
		CreatedAt:  time.Unix(w.CreatedAt, 0),
		Entries:    entries,
	}
	if len(entries) > 0 {
		opts.HighestIndex = int64(len(entries) - 1)
	}

	opts.RootPublicKey, opts.ChainCode, err = s.exportRoot(w)
	if err != nil {
		return nil, err
	}

	return legacy.Encode(opts)
}

// exportRoot returns the root public key and a copy of the root chain code.
func (s *walletService) exportRoot(
	w *domain.Wallet,
) (*btcec.PublicKey, []byte, error) {
	var root *hdkeychain.ExtendedKey
	if w.IsWatchOnly() {
		xpub, err := hdkeychain.NewKeyFromString(w.RootXPub)
		if err != nil {
			return nil, nil, err
		}
		root = xpub
	} else {
		keychain, err := s.keyring.keychain(w)
		if err != nil {
			return nil, nil, err
		}
		defer keychain.Close()

		if root, err = keychain.Root(); err != nil {
			return nil, nil, err
		}
	}

	pubkey, err := root.ECPubKey()
	if err != nil {
		return nil, nil, err
	}
	return pubkey, append([]byte{}, root.ChainCode()...), nil
}

func (s *walletService) UnlockWallet(
	ctx context.Context, walletName, passphrase string,
) error {
	w, err := s.getWallet(ctx, walletName)
	if err != nil {
		return err
	}
	if err := s.keyring.unlock(w, passphrase); err != nil {
		return err
	}
	log.Infof("wallet %s unlocked", w.Name)
	return nil
}

func (s *walletService) LockWallet(ctx context.Context, walletName string) error {
	w, err := s.getWallet(ctx, walletName)
	if err != nil {
		return err
	}
	s.keyring.lock(w.ID)
	log.Infof("wallet %s locked", w.Name)
	return nil
}

func (s *walletService) GetWallet(
	ctx context.Context, walletName string,
) (*WalletInfo, error) {
	w, err := s.getWallet(ctx, walletName)
	if err != nil {
		return nil, err
	}
	return s.walletInfo(w), nil
}

func (s *walletService) ListWallets(ctx context.Context) ([]WalletInfo, error) {
	wallets, err := s.repoManager.WalletRepository().ListWallets(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]WalletInfo, 0, len(wallets))
	for i := range wallets {
		infos = append(infos, *s.walletInfo(&wallets[i]))
	}
	return infos, nil
}

func (s *walletService) DeriveAddresses(
	ctx context.Context, walletName string, addrType wallet.AddressType,
	change bool, num int,
) ([]domain.AddressInfo, error) {
	if num <= 0 {
		num = 1
	}
	w, err := s.getWallet(ctx, walletName)
	if err != nil {
		return nil, err
	}

	unlock := s.keyring.lockWallet(w.ID)
	defer unlock()

	addresses := make([]domain.AddressInfo, 0, num)
	err = s.repoManager.WalletRepository().UpdateWallet(
		ctx, w.ID, func(w *domain.Wallet) (*domain.Wallet, error) {
			for i := 0; i < num; i++ {
				info, err := deriveNextAddress(w, addrType, change)
				if err != nil {
					return nil, err
				}
				addresses = append(addresses, info)
			}
			return w, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return addresses, nil
}

// DeriveTaprootScriptAddress derives the next Taproot address of the wallet
// with its output key tweaked by the Merkle root of leafScripts. The wallet
// keeps spending it through the key path.
func (s *walletService) DeriveTaprootScriptAddress(
	ctx context.Context, walletName string, change bool, leafScripts [][]byte,
) (*domain.AddressInfo, error) {
	if len(leafScripts) <= 0 {
		return nil, wallet.ErrEmptyTapLeaves
	}
	w, err := s.getWallet(ctx, walletName)
	if err != nil {
		return nil, err
	}

	unlock := s.keyring.lockWallet(w.ID)
	defer unlock()

	var info domain.AddressInfo
	err = s.repoManager.WalletRepository().UpdateWallet(
		ctx, w.ID, func(w *domain.Wallet) (*domain.Wallet, error) {
			path, err := w.NextAddressPath(wallet.Taproot, change)
			if err != nil {
				return nil, err
			}
			keychain, err := accountKeychain(w, wallet.Taproot)
			if err != nil {
				return nil, err
			}
			defer keychain.Close()

			info, err = newAddressInfo(
				w, keychain, wallet.Taproot, change, path[len(path)-1],
			)
			if err != nil {
				return nil, err
			}
			net, err := w.NetworkParams()
			if err != nil {
				return nil, err
			}
			internalKey, err := btcec.ParsePubKey(info.PubKey)
			if err != nil {
				return nil, err
			}
			addr, err := wallet.TaprootAddressWithScripts(internalKey, leafScripts, net)
			if err != nil {
				return nil, err
			}
			info.Address = addr.EncodedAddress
			info.Script = addr.Script
			info.TapMerkleRoot = addr.MerkleRoot
			w.AddAddress(info)
			return w, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *walletService) ListAddresses(
	ctx context.Context, walletName string, addrType *wallet.AddressType,
) ([]domain.AddressInfo, error) {
	w, err := s.getWallet(ctx, walletName)
	if err != nil {
		return nil, err
	}
	return w.ListAddresses(addrType), nil
}

// GetDescriptors returns the receive and change output descriptors of
// every account of the wallet.
func (s *walletService) GetDescriptors(
	ctx context.Context, walletName string,
) ([]string, error) {
	w, err := s.getWallet(ctx, walletName)
	if err != nil {
		return nil, err
	}
	net, err := w.NetworkParams()
	if err != nil {
		return nil, err
	}

	descriptors := make([]string, 0)
	for _, addrType := range wallet.AddressTypes() {
		xpub, err := w.AccountXPub(addrType)
		if err != nil {
			continue
		}
		accountPath, err := wallet.AccountPath(addrType, net, 0)
		if err != nil {
			return nil, err
		}
		for _, branch := range []uint32{wallet.ExternalChain, wallet.InternalChain} {
			desc, err := wallet.Descriptor(wallet.DescriptorOpts{
				MasterFingerprint: w.MasterFingerprint,
				AccountPath:       accountPath,
				AccountXPub:       xpub,
				AddressType:       addrType,
				Change:            branch,
			})
			if err != nil {
				return nil, err
			}
			descriptors = append(descriptors, desc)
		}
	}
	return descriptors, nil
}

func (s *walletService) SetLabel(
	ctx context.Context, walletName, key, label string,
) error {
	w, err := s.getWallet(ctx, walletName)
	if err != nil {
		return err
	}
	return s.repoManager.WalletRepository().UpdateWallet(
		ctx, w.ID, func(w *domain.Wallet) (*domain.Wallet, error) {
			if err := w.SetLabel(key, label); err != nil {
				return nil, err
			}
			return w, nil
		},
	)
}

// SyncUtxos fetches the utxos of the wallet addresses from the utxo feed
// and updates the stored ones: new utxos are added, confirmations are
// recorded and utxos no longer reported are marked as spent.
func (s *walletService) SyncUtxos(
	ctx context.Context, walletName string,
) (*SyncResult, error) {
	if s.utxoFeed == nil {
		return nil, ErrNoUtxoFeed
	}
	w, err := s.getWallet(ctx, walletName)
	if err != nil {
		return nil, err
	}

	unlock := s.keyring.lockWallet(w.ID)
	defer unlock()

	addresses := w.AddressList()
	if len(addresses) <= 0 {
		return &SyncResult{}, nil
	}
	chainUtxos, err := s.utxoFeed.GetUnspentsForAddresses(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("fetching utxos: %w", err)
	}

	res, err := s.repoManager.RunTransaction(
		ctx, false, func(ctx context.Context) (interface{}, error) {
			utxoRepo := s.repoManager.UtxoRepository()

			stored, err := utxoRepo.GetUtxosForWallet(ctx, w.ID)
			if err != nil {
				return nil, err
			}

			seen := make(map[domain.UtxoKey]bool)
			utxos := make([]domain.Utxo, 0, len(chainUtxos))
			confirmedByHeight := make(map[uint32][]domain.UtxoKey)
			for _, u := range chainUtxos {
				info, ok := w.GetAddress(u.Address)
				if !ok {
					continue
				}
				utxo := domain.Utxo{
					TxID:           u.TxID,
					VOut:           u.Vout,
					WalletID:       w.ID,
					Value:          u.Value,
					Script:         u.Script,
					Address:        u.Address,
					AddressType:    info.Type,
					DerivationPath: info.DerivationPath,
				}
				if len(utxo.Script) <= 0 {
					utxo.Script = info.Script
				}
				seen[utxo.Key()] = true
				utxos = append(utxos, utxo)
				if u.Confirmed {
					confirmedByHeight[u.BlockHeight] = append(
						confirmedByHeight[u.BlockHeight], utxo.Key(),
					)
				}
			}

			result := &SyncResult{}
			if result.Added, err = utxoRepo.AddUtxos(ctx, utxos); err != nil {
				return nil, err
			}
			for height, keys := range confirmedByHeight {
				count, err := utxoRepo.ConfirmUtxos(ctx, keys, height)
				if err != nil {
					return nil, err
				}
				result.Confirmed += count
			}

			spentKeys := make([]domain.UtxoKey, 0)
			for _, u := range stored {
				if !seen[u.Key()] {
					spentKeys = append(spentKeys, u.Key())
				}
			}
			if result.Spent, err = utxoRepo.SpendUtxos(ctx, spentKeys); err != nil {
				return nil, err
			}
			return result, nil
		},
	)
	if err != nil {
		return nil, err
	}

	result := res.(*SyncResult)
	s.metrics.UtxosSynced(result.Added)
	log.Infof(
		"synced wallet %s: %d new, %d confirmed, %d spent utxos",
		w.Name, result.Added, result.Confirmed, result.Spent,
	)
	return result, nil
}

func (s *walletService) ListUtxos(
	ctx context.Context, walletName string,
) ([]domain.Utxo, error) {
	w, err := s.getWallet(ctx, walletName)
	if err != nil {
		return nil, err
	}
	return s.repoManager.UtxoRepository().GetUtxosForWallet(ctx, w.ID)
}

func (s *walletService) GetBalance(
	ctx context.Context, walletName string,
) (*Balance, error) {
	w, err := s.getWallet(ctx, walletName)
	if err != nil {
		return nil, err
	}

	utxoRepo := s.repoManager.UtxoRepository()
	confirmed, unconfirmed, err := utxoRepo.GetBalance(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	utxos, err := utxoRepo.GetUtxosForWallet(ctx, w.ID)
	if err != nil {
		return nil, err
	}

	balance := &Balance{Confirmed: confirmed, Unconfirmed: unconfirmed}
	for _, u := range utxos {
		if u.IsClaimed() {
			balance.Claimed += u.Value
		}
	}
	return balance, nil
}

// getWallet looks the wallet up by id first, then by name.
func (s *walletService) getWallet(
	ctx context.Context, walletName string,
) (*domain.Wallet, error) {
	return getWallet(ctx, s.repoManager.WalletRepository(), walletName)
}

func (s *walletService) walletInfo(w *domain.Wallet) *WalletInfo {
	return &WalletInfo{
		ID:                w.ID,
		Name:              w.Name,
		Network:           w.Network,
		Kind:              w.Kind,
		MasterFingerprint: w.MasterFingerprint,
		IsLocked:          !s.keyring.isUnlocked(w.ID),
		NumOfAddresses:    len(w.Addresses),
	}
}

func (s *walletService) newMnemonicWallet(
	name string, mnemonic []string, passphrase string,
) (*domain.Wallet, error) {
	if len(passphrase) <= 0 {
		return nil, ErrNullPassphrase
	}
	seed, err := wallet.SeedFromMnemonic(wallet.SeedFromMnemonicOpts{
		Mnemonic: mnemonic,
	})
	if err != nil {
		return nil, err
	}
	defer securestore.Zero(seed)

	keychain, err := wallet.NewKeychain(wallet.KeychainOpts{
		Seed:    seed,
		Network: s.network,
	})
	if err != nil {
		return nil, err
	}
	defer keychain.Close()

	encryptedSeed, err := wallet.Encrypt(wallet.EncryptOpts{
		PlainText:  seed,
		Passphrase: []byte(passphrase),
	})
	if err != nil {
		return nil, err
	}

	w, err := domain.NewWallet(
		uuid.New().String(), name, s.network.Name, domain.KindMnemonic,
		encryptedSeed, "", keychain.MasterFingerprint(), time.Now().Unix(),
	)
	if err != nil {
		return nil, err
	}
	if err := addAccountXPubs(w, keychain); err != nil {
		return nil, err
	}
	return w, nil
}

// discoverAddresses derives addresses of one branch in batches of gapLimit
// and keeps those up to the last one holding utxos.
func (s *walletService) discoverAddresses(
	ctx context.Context, w *domain.Wallet, addrType wallet.AddressType,
	change bool, gapLimit int,
) error {
	keychain, err := accountKeychain(w, addrType)
	if err != nil {
		return err
	}
	defer keychain.Close()

	next := uint32(0)
	for {
		batch := make([]domain.AddressInfo, 0, gapLimit)
		addresses := make([]string, 0, gapLimit)
		for i := 0; i < gapLimit; i++ {
			info, err := newAddressInfo(w, keychain, addrType, change, next+uint32(i))
			if err != nil {
				return err
			}
			batch = append(batch, info)
			addresses = append(addresses, info.Address)
		}

		utxos, err := s.utxoFeed.GetUnspentsForAddresses(ctx, addresses)
		if err != nil {
			return err
		}
		used := make(map[string]bool)
		for _, u := range utxos {
			used[u.Address] = true
		}

		lastUsed := -1
		for i, info := range batch {
			if used[info.Address] {
				lastUsed = i
			}
		}
		for _, info := range batch[:lastUsed+1] {
			w.AddAddress(info)
		}
		next += uint32(lastUsed + 1)
		if lastUsed < 0 {
			break
		}
	}

	if change {
		w.NextInternalIndex[addrType] = next
	} else {
		w.NextExternalIndex[addrType] = next
	}
	return nil
}

func getWallet(
	ctx context.Context, repo domain.WalletRepository, walletName string,
) (*domain.Wallet, error) {
	w, err := repo.GetWallet(ctx, walletName)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, err
	}
	return repo.GetWalletByName(ctx, walletName)
}

// deriveNextAddress derives and registers the next address of the given
// type and branch.
func deriveNextAddress(
	w *domain.Wallet, addrType wallet.AddressType, change bool,
) (domain.AddressInfo, error) {
	path, err := w.NextAddressPath(addrType, change)
	if err != nil {
		return domain.AddressInfo{}, err
	}
	keychain, err := accountKeychain(w, addrType)
	if err != nil {
		return domain.AddressInfo{}, err
	}
	defer keychain.Close()

	info, err := newAddressInfo(w, keychain, addrType, change, path[len(path)-1])
	if err != nil {
		return domain.AddressInfo{}, err
	}
	w.AddAddress(info)
	return info, nil
}

// newAddressInfo derives the address at the given index of a branch of the
// account keychain.
func newAddressInfo(
	w *domain.Wallet, accountKeychain *wallet.Keychain,
	addrType wallet.AddressType, change bool, index uint32,
) (domain.AddressInfo, error) {
	net, err := w.NetworkParams()
	if err != nil {
		return domain.AddressInfo{}, err
	}
	branch := wallet.ExternalChain
	if change {
		branch = wallet.InternalChain
	}
	path, err := wallet.AddressPath(addrType, net, 0, branch, index)
	if err != nil {
		return domain.AddressInfo{}, err
	}

	pubkey, err := accountKeychain.PublicKey(wallet.DerivationPath{branch, index})
	if err != nil {
		return domain.AddressInfo{}, err
	}
	addr, err := wallet.AddressFor(pubkey, addrType, net)
	if err != nil {
		return domain.AddressInfo{}, err
	}

	return domain.AddressInfo{
		Address:        addr.EncodedAddress,
		Script:         addr.Script,
		Type:           addrType,
		DerivationPath: path.String(),
		PubKey:         pubkey.SerializeCompressed(),
		Change:         change,
	}, nil
}

func addAccountXPubs(w *domain.Wallet, keychain *wallet.Keychain) error {
	net, err := w.NetworkParams()
	if err != nil {
		return err
	}
	for _, addrType := range wallet.AddressTypes() {
		path, err := wallet.AccountPath(addrType, net, 0)
		if err != nil {
			return err
		}
		xpub, err := keychain.ExtendedPublicKey(path)
		if err != nil {
			return err
		}
		w.AccountXPubs[addrType] = xpub
	}
	return nil
}

func encryptLegacySecret(
	res *legacy.ImportResult, passphrase string,
) (string, error) {
	var encrypted string
	err := res.RootKey.With(func(rootKey []byte) error {
		secret := make([]byte, 0, len(rootKey)+len(res.ChainCode))
		secret = append(secret, rootKey...)
		secret = append(secret, res.ChainCode...)
		defer securestore.Zero(secret)

		var err error
		encrypted, err = wallet.Encrypt(wallet.EncryptOpts{
			PlainText:  secret,
			Passphrase: []byte(passphrase),
		})
		return err
	})
	return encrypted, err
}

// importEntries registers the key-data entries of a legacy file as Legacy
// addresses at m/0'/0/index and their comments as labels.
func importEntries(
	w *domain.Wallet, entries []legacy.Entry, net *chaincfg.Params,
) (int, error) {
	imported := 0
	for _, entry := range entries {
		switch entry.Type {
		case legacy.EntryKeyData:
			if entry.Record == nil {
				continue
			}
			path, err := legacy.EntryPath(entry.Record.ChainIndex)
			if err != nil {
				return 0, err
			}
			addr, err := entry.Address(net)
			if err != nil {
				return 0, err
			}
			info := domain.AddressInfo{
				Address:        addr,
				Type:           wallet.Legacy,
				DerivationPath: path.String(),
			}
			// Keys committed uncompressed can be watched but not signed for.
			if pubkey, err := entry.Record.PubKey(); err == nil {
				compressed := pubkey.SerializeCompressed()
				if bytes.Equal(btcutil.Hash160(compressed), entry.Hash160) {
					info.PubKey = compressed
				}
			}
			if info.Script, err = p2pkhScript(entry.Hash160, net); err != nil {
				return 0, err
			}
			w.AddAddress(info)
			imported++

		case legacy.EntryAddressComment:
			addr, err := entry.Address(net)
			if err != nil {
				return 0, err
			}
			if err := w.SetLabel(addr, entry.Comment); err != nil {
				return 0, err
			}

		case legacy.EntryTxComment:
			if entry.TxID == nil {
				continue
			}
			if err := w.SetLabel(entry.TxID.String(), entry.Comment); err != nil {
				return 0, err
			}
		}
	}
	return imported, nil
}

func p2pkhScript(hash160 []byte, net *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.NewAddressPubKeyHash(hash160, net)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

// exportEntries is the inverse of importEntries for the addresses whose key
// is known.
func exportEntries(w *domain.Wallet) ([]legacy.Entry, error) {
	entries := make([]legacy.Entry, 0)
	for _, info := range w.Addresses {
		path, err := wallet.ParseDerivationPath(info.DerivationPath)
		if err != nil {
			return nil, err
		}
		if len(path) != 3 || path[0] != hdkeychain.HardenedKeyStart ||
			len(info.PubKey) <= 0 {
			continue
		}
		pubkey, err := btcec.ParsePubKey(info.PubKey)
		if err != nil {
			return nil, err
		}
		entries = append(entries, legacy.NewKeyDataEntry(pubkey, int64(path[2])))

		if label, ok := w.Labels[info.Address]; ok {
			entries = append(entries, legacy.Entry{
				Type:    legacy.EntryAddressComment,
				Hash160: entries[len(entries)-1].Hash160,
				Comment: label,
			})
		}
	}
	return entries, nil
}
