package esplora

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/btcvault/pkg/explorer"
)

func (e *esplora) GetTransaction(ctx context.Context, txid string) (*wire.MsgTx, error) {
	txHex, err := e.GetTransactionHex(ctx, txid)
	if err != nil {
		return nil, err
	}
	buf, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hex: %s", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(buf)); err != nil {
		return nil, fmt.Errorf("invalid tx: %s", err)
	}
	if tx.TxHash().String() != txid {
		return nil, fmt.Errorf("explorer returned tx %s for %s", tx.TxHash(), txid)
	}
	return tx, nil
}

func (e *esplora) GetTransactionHex(ctx context.Context, txid string) (string, error) {
	resp, err := e.get(ctx, fmt.Sprintf("/tx/%s/hex", txid))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

func (e *esplora) GetTransactionStatus(
	ctx context.Context, txid string,
) (*explorer.TransactionStatus, error) {
	resp, err := e.get(ctx, fmt.Sprintf("/tx/%s/status", txid))
	if err != nil {
		return nil, err
	}

	var s status
	if err := json.Unmarshal([]byte(resp), &s); err != nil {
		return nil, fmt.Errorf("error on parsing tx status: %s", err)
	}
	return s.toExplorer(), nil
}

func (e *esplora) BroadcastTransaction(ctx context.Context, txHex string) (string, error) {
	headers := map[string]string{
		"Content-Type": "text/plain",
	}
	resp, err := e.request(ctx, http.MethodPost, "/tx", txHex, headers)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}
