package domain

import "context"

// WalletRepository is the abstraction for any kind of database intended to
// persist Wallets.
type WalletRepository interface {
	// AddWallet inserts a new wallet, failing with ErrWalletAlreadyExists
	// if the id is already taken.
	AddWallet(ctx context.Context, w *Wallet) error
	// GetWallet returns the wallet with the given id or ErrWalletNotFound.
	GetWallet(ctx context.Context, walletID string) (*Wallet, error)
	// GetWalletByName ...
	GetWalletByName(ctx context.Context, name string) (*Wallet, error)
	// UpdateWallet lets updateFn modify the wallet and persists the result.
	UpdateWallet(
		ctx context.Context, walletID string,
		updateFn func(w *Wallet) (*Wallet, error),
	) error
	// ListWallets ...
	ListWallets(ctx context.Context) ([]Wallet, error)
}

// UtxoRepository is the abstraction for any kind of database intended to
// persist Utxos. ClaimUtxos, ReleaseUtxos and TransferUtxos are atomic:
// either all the given utxos are affected or none is.
type UtxoRepository interface {
	// AddUtxos inserts the given utxos and returns how many were new.
	AddUtxos(ctx context.Context, utxos []Utxo) (int, error)
	GetUtxo(ctx context.Context, key UtxoKey) (*Utxo, error)
	// GetUtxosForWallet returns the unspent utxos of the wallet.
	GetUtxosForWallet(ctx context.Context, walletID string) ([]Utxo, error)
	// GetSpendableUtxos returns the unspent utxos of the wallet not
	// claimed by any draft.
	GetSpendableUtxos(ctx context.Context, walletID string) ([]Utxo, error)
	// GetBalance returns the confirmed and unconfirmed amounts of unspent
	// utxos of the wallet.
	GetBalance(ctx context.Context, walletID string) (confirmed, unconfirmed uint64, err error)
	ConfirmUtxos(ctx context.Context, keys []UtxoKey, height uint32) (int, error)
	SpendUtxos(ctx context.Context, keys []UtxoKey) (int, error)
	ClaimUtxos(ctx context.Context, keys []UtxoKey, draftID string) error
	ReleaseUtxos(ctx context.Context, keys []UtxoKey, draftID string) error
	TransferUtxos(ctx context.Context, keys []UtxoKey, fromDraftID, toDraftID string) error
}

// DraftRepository is the abstraction for any kind of database intended to
// persist Drafts.
type DraftRepository interface {
	// AddOrUpdateDraft upserts the draft.
	AddOrUpdateDraft(ctx context.Context, d *Draft) error
	GetDraft(ctx context.Context, draftID string) (*Draft, error)
	GetDraftsForWallet(ctx context.Context, walletID string) ([]Draft, error)
}
