package ports

import (
	"context"

	"github.com/tdex-network/btcvault/pkg/explorer"
)

// FeeFeed provides the fee rates, in sat/vB, to confirm within the number
// of blocks of the key.
type FeeFeed interface {
	GetFeeEstimates(ctx context.Context) (map[uint32]float64, error)
}

// UtxoFeed reports the chain view of the wallet addresses.
type UtxoFeed interface {
	GetUnspentsForAddresses(
		ctx context.Context, addresses []string,
	) ([]explorer.Utxo, error)
}

// Broadcaster hands finalized transactions over to the network.
type Broadcaster interface {
	BroadcastTransaction(ctx context.Context, txhex string) (string, error)
}
