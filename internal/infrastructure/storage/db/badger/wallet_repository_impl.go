package dbbadger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/btcvault/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type walletRepositoryImpl struct {
	store *badgerhold.Store
}

func newWalletRepositoryImpl(store *badgerhold.Store) domain.WalletRepository {
	return &walletRepositoryImpl{store}
}

func (r *walletRepositoryImpl) AddWallet(
	ctx context.Context, w *domain.Wallet,
) error {
	return withTx(ctx, r.store, true, func(tx *badger.Txn) error {
		existing, err := r.findWallet(tx, badgerhold.Where("Name").Eq(w.Name))
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: name %q", domain.ErrWalletAlreadyExists, w.Name)
		}

		if err := r.store.TxInsert(tx, w.ID, w); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				return fmt.Errorf("%w: id %s", domain.ErrWalletAlreadyExists, w.ID)
			}
			return err
		}
		return nil
	})
}

func (r *walletRepositoryImpl) GetWallet(
	ctx context.Context, walletID string,
) (*domain.Wallet, error) {
	var w *domain.Wallet
	err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		var err error
		w, err = r.getWallet(tx, walletID)
		return err
	})
	return w, err
}

func (r *walletRepositoryImpl) GetWalletByName(
	ctx context.Context, name string,
) (*domain.Wallet, error) {
	var w *domain.Wallet
	err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		var err error
		w, err = r.findWallet(tx, badgerhold.Where("Name").Eq(name))
		if err != nil {
			return err
		}
		if w == nil {
			return fmt.Errorf("%w: %q", domain.ErrWalletNotFound, name)
		}
		return nil
	})
	return w, err
}

func (r *walletRepositoryImpl) UpdateWallet(
	ctx context.Context, walletID string,
	updateFn func(w *domain.Wallet) (*domain.Wallet, error),
) error {
	return withTx(ctx, r.store, true, func(tx *badger.Txn) error {
		w, err := r.getWallet(tx, walletID)
		if err != nil {
			return err
		}

		updatedWallet, err := updateFn(w)
		if err != nil {
			return err
		}

		return r.store.TxUpdate(tx, walletID, updatedWallet)
	})
}

func (r *walletRepositoryImpl) ListWallets(
	ctx context.Context,
) ([]domain.Wallet, error) {
	wallets := make([]domain.Wallet, 0)
	err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		return r.store.TxFind(tx, &wallets, nil)
	})
	return wallets, err
}

func (r *walletRepositoryImpl) getWallet(
	tx *badger.Txn, walletID string,
) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := r.store.TxGet(tx, walletID, &w); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, walletID)
		}
		return nil, err
	}
	return &w, nil
}

func (r *walletRepositoryImpl) findWallet(
	tx *badger.Txn, query *badgerhold.Query,
) (*domain.Wallet, error) {
	var wallets []domain.Wallet
	if err := r.store.TxFind(tx, &wallets, query); err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, nil
	}
	return &wallets[0], nil
}
