package esplora

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// GetFeeEstimates returns the sat/vB rates keyed by confirmation target, as
// given by the /fee-estimates endpoint.
func (e *esplora) GetFeeEstimates(ctx context.Context) (map[uint32]float64, error) {
	resp, err := e.get(ctx, "/fee-estimates")
	if err != nil {
		return nil, err
	}

	var estimates map[string]float64
	if err := json.Unmarshal([]byte(resp), &estimates); err != nil {
		return nil, fmt.Errorf("error on parsing fee estimates: %s", err)
	}

	rates := make(map[uint32]float64, len(estimates))
	for target, rate := range estimates {
		blocks, err := strconv.ParseUint(target, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid confirmation target %q", target)
		}
		rates[uint32(blocks)] = rate
	}
	return rates, nil
}
