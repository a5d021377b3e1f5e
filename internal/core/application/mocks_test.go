package application_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/btcvault/pkg/explorer"
)

// **** Utxo feed ****

type mockUtxoFeed struct {
	mock.Mock
}

func (m *mockUtxoFeed) GetUnspentsForAddresses(
	ctx context.Context, addresses []string,
) ([]explorer.Utxo, error) {
	args := m.Called(ctx, addresses)

	var res []explorer.Utxo
	if a := args.Get(0); a != nil {
		res = a.([]explorer.Utxo)
	}
	return res, args.Error(1)
}

// **** Fee feed ****

type mockFeeFeed struct {
	mock.Mock
}

func (m *mockFeeFeed) GetFeeEstimates(
	ctx context.Context,
) (map[uint32]float64, error) {
	args := m.Called(ctx)

	var res map[uint32]float64
	if a := args.Get(0); a != nil {
		res = a.(map[uint32]float64)
	}
	return res, args.Error(1)
}
