package ports

import (
	"context"

	"github.com/tdex-network/btcvault/internal/core/domain"
)

// RepoManager interface defines the methods for wallets, utxos and drafts.
type RepoManager interface {
	WalletRepository() domain.WalletRepository
	UtxoRepository() domain.UtxoRepository
	DraftRepository() domain.DraftRepository

	// RunTransaction runs handler in a single database transaction that is
	// committed if handler returns no error, discarded otherwise.
	// Repository calls made with the ctx given to handler join that
	// transaction.
	RunTransaction(
		ctx context.Context,
		readOnly bool,
		handler func(ctx context.Context) (interface{}, error),
	) (interface{}, error)

	Close()
}
