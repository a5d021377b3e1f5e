package explorer

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrNotFound is returned when the explorer doesn't know the requested
	// transaction or address.
	ErrNotFound = errors.New("not found")
)

// Utxo is an unspent output of an address as reported by the explorer.
type Utxo struct {
	TxID        string
	Vout        uint32
	Value       uint64
	Address     string
	Script      []byte
	Confirmed   bool
	BlockHeight uint32
}

// TransactionStatus ...
type TransactionStatus struct {
	Confirmed   bool
	BlockHash   string
	BlockHeight uint32
	BlockTime   int64
}

// Service is representation of an explorer that allows to fetch data from the
// blockchain and to broadcast transactions.
type Service interface {
	// GetFeeEstimates returns the fee rates, in sat/vB, to confirm within
	// the number of blocks of the key.
	GetFeeEstimates(ctx context.Context) (map[uint32]float64, error)
	// GetUnspents fetches the utxos of the given address.
	GetUnspents(ctx context.Context, addr string) ([]Utxo, error)
	// GetUnspentsForAddresses fetches the utxos of the given list of
	// addresses, in order.
	GetUnspentsForAddresses(ctx context.Context, addresses []string) ([]Utxo, error)
	// GetTransaction fetches a transaction given its hash.
	GetTransaction(ctx context.Context, txid string) (*wire.MsgTx, error)
	// GetTransactionHex fetches the transaction in hex format given its hash.
	GetTransactionHex(ctx context.Context, txid string) (string, error)
	// GetTransactionStatus returns the status of the tx identified by its hash.
	GetTransactionStatus(ctx context.Context, txid string) (*TransactionStatus, error)
	// BroadcastTransaction attempts to add the given tx in hex format to the
	// mempool and returns its tx hash.
	BroadcastTransaction(ctx context.Context, txhex string) (string, error)
	// GetBlockHeight returns the the number of block of the blockchain.
	GetBlockHeight(ctx context.Context) (uint32, error)
}
