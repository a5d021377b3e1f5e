package dbbadger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/btcvault/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type draftRepositoryImpl struct {
	store *badgerhold.Store
}

func newDraftRepositoryImpl(store *badgerhold.Store) domain.DraftRepository {
	return &draftRepositoryImpl{store}
}

func (r *draftRepositoryImpl) AddOrUpdateDraft(
	ctx context.Context, d *domain.Draft,
) error {
	return withTx(ctx, r.store, true, func(tx *badger.Txn) error {
		return r.store.TxUpsert(tx, d.ID, d)
	})
}

func (r *draftRepositoryImpl) GetDraft(
	ctx context.Context, draftID string,
) (*domain.Draft, error) {
	var d domain.Draft
	err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		return r.store.TxGet(tx, draftID, &d)
	})
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDraftNotFound, draftID)
		}
		return nil, err
	}
	return &d, nil
}

// GetDraftsForWallet returns the drafts of the wallet, oldest first.
func (r *draftRepositoryImpl) GetDraftsForWallet(
	ctx context.Context, walletID string,
) ([]domain.Draft, error) {
	drafts := make([]domain.Draft, 0)
	err := withTx(ctx, r.store, false, func(tx *badger.Txn) error {
		return r.store.TxFind(
			tx, &drafts, badgerhold.Where("WalletID").Eq(walletID),
		)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].CreatedAt < drafts[j].CreatedAt
	})
	return drafts, nil
}
