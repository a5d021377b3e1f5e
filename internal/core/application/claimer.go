package application

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/btcvault/internal/core/domain"
)

// repoClaimer stores the claims of drafts on the wallet utxos. It must be
// created with the ctx of the database transaction the draft operation
// runs in so that claims are committed, or discarded, along with the draft.
type repoClaimer struct {
	ctx  context.Context
	repo domain.UtxoRepository
}

func newRepoClaimer(
	ctx context.Context, repo domain.UtxoRepository,
) *repoClaimer {
	return &repoClaimer{ctx, repo}
}

func (c *repoClaimer) Claim(draftID string, outpoints []wire.OutPoint) error {
	return c.repo.ClaimUtxos(c.ctx, utxoKeys(outpoints), draftID)
}

func (c *repoClaimer) Release(draftID string, outpoints []wire.OutPoint) error {
	return c.repo.ReleaseUtxos(c.ctx, utxoKeys(outpoints), draftID)
}

func (c *repoClaimer) Transfer(
	fromDraftID, toDraftID string, outpoints []wire.OutPoint,
) error {
	return c.repo.TransferUtxos(c.ctx, utxoKeys(outpoints), fromDraftID, toDraftID)
}

func utxoKeys(outpoints []wire.OutPoint) []domain.UtxoKey {
	keys := make([]domain.UtxoKey, 0, len(outpoints))
	for _, op := range outpoints {
		keys = append(keys, domain.NewUtxoKey(op))
	}
	return keys
}
