package dbbadger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/btcvault/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type utxoRepositoryImpl struct {
	store *badgerhold.Store
}

func newUtxoRepositoryImpl(store *badgerhold.Store) domain.UtxoRepository {
	return &utxoRepositoryImpl{store}
}

func (r *utxoRepositoryImpl) AddUtxos(
	ctx context.Context, utxos []domain.Utxo,
) (int, error) {
	count := 0
	err := withTx(ctx, r.store, true, func(tx *badger.Txn) error {
		count = 0
		for _, u := range utxos {
			u := u
			if err := r.store.TxInsert(tx, u.Key(), &u); err != nil {
				if errors.Is(err, badgerhold.ErrKeyExists) {
					continue
				}
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

func (r *utxoRepositoryImpl) GetUtxo(
	ctx context.Context, key domain.UtxoKey,
) (*domain.Utxo, error) {
	var u *domain.Utxo
	err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		var err error
		u, err = r.getUtxo(tx, key)
		return err
	})
	return u, err
}

func (r *utxoRepositoryImpl) GetUtxosForWallet(
	ctx context.Context, walletID string,
) ([]domain.Utxo, error) {
	query := badgerhold.Where("WalletID").Eq(walletID).
		And("Spent").Eq(false)
	return r.findUtxos(ctx, query)
}

func (r *utxoRepositoryImpl) GetSpendableUtxos(
	ctx context.Context, walletID string,
) ([]domain.Utxo, error) {
	query := badgerhold.Where("WalletID").Eq(walletID).
		And("Spent").Eq(false).
		And("ClaimedBy").Eq("")
	return r.findUtxos(ctx, query)
}

func (r *utxoRepositoryImpl) GetBalance(
	ctx context.Context, walletID string,
) (uint64, uint64, error) {
	utxos, err := r.GetUtxosForWallet(ctx, walletID)
	if err != nil {
		return 0, 0, err
	}

	var confirmed, unconfirmed uint64
	for _, u := range utxos {
		if u.IsConfirmed() {
			confirmed += u.Value
		} else {
			unconfirmed += u.Value
		}
	}
	return confirmed, unconfirmed, nil
}

func (r *utxoRepositoryImpl) ConfirmUtxos(
	ctx context.Context, keys []domain.UtxoKey, height uint32,
) (int, error) {
	count := 0
	err := r.updateUtxos(ctx, keys, false, func(u *domain.Utxo) error {
		if u.IsConfirmed() && u.BlockHeight == height {
			return errSkip
		}
		u.Confirm(height)
		count++
		return nil
	})
	return count, err
}

func (r *utxoRepositoryImpl) SpendUtxos(
	ctx context.Context, keys []domain.UtxoKey,
) (int, error) {
	count := 0
	err := r.updateUtxos(ctx, keys, false, func(u *domain.Utxo) error {
		if u.IsSpent() {
			return errSkip
		}
		u.Spend()
		count++
		return nil
	})
	return count, err
}

func (r *utxoRepositoryImpl) ClaimUtxos(
	ctx context.Context, keys []domain.UtxoKey, draftID string,
) error {
	return r.updateUtxos(ctx, keys, true, func(u *domain.Utxo) error {
		return u.Claim(draftID)
	})
}

func (r *utxoRepositoryImpl) ReleaseUtxos(
	ctx context.Context, keys []domain.UtxoKey, draftID string,
) error {
	return r.updateUtxos(ctx, keys, false, func(u *domain.Utxo) error {
		if u.ClaimedBy != draftID {
			return errSkip
		}
		u.Release(draftID)
		return nil
	})
}

func (r *utxoRepositoryImpl) TransferUtxos(
	ctx context.Context, keys []domain.UtxoKey, fromDraftID, toDraftID string,
) error {
	return r.updateUtxos(ctx, keys, true, func(u *domain.Utxo) error {
		return u.Transfer(fromDraftID, toDraftID)
	})
}

// errSkip tells updateUtxos to leave the utxo untouched.
var errSkip = errors.New("skip")

// updateUtxos applies updateFn to every utxo in a single transaction. If
// mustExist is set a missing utxo aborts the whole update.
func (r *utxoRepositoryImpl) updateUtxos(
	ctx context.Context, keys []domain.UtxoKey, mustExist bool,
	updateFn func(u *domain.Utxo) error,
) error {
	return withTx(ctx, r.store, true, func(tx *badger.Txn) error {
		for _, key := range keys {
			u, err := r.getUtxo(tx, key)
			if err != nil {
				if !mustExist && errors.Is(err, domain.ErrUtxoNotFound) {
					continue
				}
				return err
			}

			if err := updateFn(u); err != nil {
				if errors.Is(err, errSkip) {
					continue
				}
				return err
			}

			if err := r.store.TxUpdate(tx, key, u); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *utxoRepositoryImpl) findUtxos(
	ctx context.Context, query *badgerhold.Query,
) ([]domain.Utxo, error) {
	utxos := make([]domain.Utxo, 0)
	err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		return r.store.TxFind(tx, &utxos, query)
	})
	return utxos, err
}

func (r *utxoRepositoryImpl) getUtxo(
	tx *badger.Txn, key domain.UtxoKey,
) (*domain.Utxo, error) {
	var u domain.Utxo
	if err := r.store.TxGet(tx, key, &u); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUtxoNotFound, key)
		}
		return nil, err
	}
	return &u, nil
}
