package esplora

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

func (e *esplora) GetBlockHeight(ctx context.Context) (uint32, error) {
	resp, err := e.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseUint(strings.TrimSpace(resp), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid block height %q", resp)
	}
	return uint32(height), nil
}
