package esplora

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/tdex-network/btcvault/pkg/explorer"
)

type status struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHash   string `json:"block_hash"`
	BlockHeight uint32 `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
}

func (s status) toExplorer() *explorer.TransactionStatus {
	return &explorer.TransactionStatus{
		Confirmed:   s.Confirmed,
		BlockHash:   s.BlockHash,
		BlockHeight: s.BlockHeight,
		BlockTime:   s.BlockTime,
	}
}

type witnessUtxo struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  uint64 `json:"value"`
	Status status `json:"status"`
}

// toExplorer completes the utxo with the script of the address it belongs
// to, not returned by the endpoint.
func (u witnessUtxo) toExplorer(
	addr string, net *chaincfg.Params,
) (explorer.Utxo, error) {
	decoded, err := btcutil.DecodeAddress(addr, net)
	if err != nil {
		return explorer.Utxo{}, err
	}
	script, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return explorer.Utxo{}, err
	}
	return explorer.Utxo{
		TxID:        u.TxID,
		Vout:        u.Vout,
		Value:       u.Value,
		Address:     addr,
		Script:      script,
		Confirmed:   u.Status.Confirmed,
		BlockHeight: u.Status.BlockHeight,
	}, nil
}
