package dbbadger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/btcvault/internal/core/domain"
	"github.com/tdex-network/btcvault/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

const (
	maxConflictRetries = 5
	gcInterval         = 30 * time.Minute
)

type contextKey string

// txKey is the context key carrying the badger transaction of
// RunTransaction.
const txKey contextKey = "tx"

type repoManager struct {
	store *badgerhold.Store

	walletRepository domain.WalletRepository
	utxoRepository   domain.UtxoRepository
	draftRepository  domain.DraftRepository
}

// NewRepoManager opens (or creates if not exists) the badger store in the
// given base data dir. An empty dir opens an in-memory store.
func NewRepoManager(baseDbDir string, logger badger.Logger) (ports.RepoManager, error) {
	var dbDir string
	if len(baseDbDir) > 0 {
		dbDir = filepath.Join(baseDbDir, "wallet")
	}

	store, err := createDb(dbDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening wallet db: %w", err)
	}

	return &repoManager{
		store:            store,
		walletRepository: newWalletRepositoryImpl(store),
		utxoRepository:   newUtxoRepositoryImpl(store),
		draftRepository:  newDraftRepositoryImpl(store),
	}, nil
}

func (r *repoManager) WalletRepository() domain.WalletRepository {
	return r.walletRepository
}

func (r *repoManager) UtxoRepository() domain.UtxoRepository {
	return r.utxoRepository
}

func (r *repoManager) DraftRepository() domain.DraftRepository {
	return r.draftRepository
}

// RunTransaction implements ports.RepoManager. A handler running inside
// another RunTransaction joins the outer transaction. Read-write
// transactions are retried when their commit conflicts with a concurrent
// one.
func (r *repoManager) RunTransaction(
	ctx context.Context,
	readOnly bool,
	handler func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	if _, ok := ctx.Value(txKey).(*badger.Txn); ok {
		return handler(ctx)
	}

	for i := 0; ; i++ {
		res, err := r.runTransaction(ctx, readOnly, handler)
		if errors.Is(err, badger.ErrConflict) && i < maxConflictRetries {
			log.Debugf("db: transaction conflict, retrying (%d)", i+1)
			continue
		}
		return res, err
	}
}

func (r *repoManager) Close() {
	if err := r.store.Close(); err != nil {
		log.WithError(err).Warn("db: failed to close store")
	}
}

func (r *repoManager) runTransaction(
	ctx context.Context,
	readOnly bool,
	handler func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	tx := r.store.Badger().NewTransaction(!readOnly)
	defer tx.Discard()

	res, err := handler(context.WithValue(ctx, txKey, tx))
	if err != nil {
		return nil, err
	}
	if readOnly {
		return res, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// withTx runs fn within the transaction carried by ctx, if any, or within a
// new one.
func withTx(
	ctx context.Context, store *badgerhold.Store, update bool,
	fn func(tx *badger.Txn) error,
) error {
	if tx, ok := ctx.Value(txKey).(*badger.Txn); ok {
		return fn(tx)
	}
	if update {
		return store.Badger().Update(fn)
	}
	return store.Badger().View(fn)
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(gcInterval)

		go func() {
			for range ticker.C {
				if db.Badger().IsClosed() {
					ticker.Stop()
					return
				}
				if err := db.Badger().RunValueLogGC(0.5); err != nil &&
					err != badger.ErrNoRewrite {
					log.Error(err)
				}
			}
		}()
	}

	return db, nil
}
