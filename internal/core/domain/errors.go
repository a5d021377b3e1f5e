package domain

import (
	"errors"

	"github.com/tdex-network/btcvault/pkg/txbuilder"
)

var (
	// ErrWalletNotFound ...
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWalletAlreadyExists ...
	ErrWalletAlreadyExists = errors.New("wallet already exists")
	// ErrWalletWatchOnly is returned when an operation needs the private
	// keys of a watch-only wallet.
	ErrWalletWatchOnly = errors.New("wallet is watch-only")
	// ErrNullWalletName ...
	ErrNullWalletName = errors.New("wallet name must not be null")
	// ErrNullSecret ...
	ErrNullSecret = errors.New("wallet must carry an encrypted secret or a root xpub")
	// ErrUnknownAddress is returned when labelling or looking up an address
	// not derived by the wallet.
	ErrUnknownAddress = errors.New("address does not belong to the wallet")
	// ErrUtxoNotFound ...
	ErrUtxoNotFound = errors.New("utxo not found")
	// ErrUtxoSpent is returned when claiming an already spent utxo.
	ErrUtxoSpent = errors.New("utxo is already spent")
	// ErrDraftNotFound ...
	ErrDraftNotFound = errors.New("draft not found")
	// ErrDoubleSpendConflict is the claim conflict of the transaction
	// builder, reported the same way by the persisted claims.
	ErrDoubleSpendConflict = txbuilder.ErrDoubleSpendConflict
)
