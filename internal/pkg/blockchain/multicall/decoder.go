package multicall

import (
	"fmt"

	"github.com/archon-research/multiread/internal/pkg/abicodec"
	"github.com/archon-research/multiread/internal/ports/outbound"
)

// ErrResultCount means the aggregator answered with a different number of
// results than calls were sent. Positions can no longer be trusted, so the
// whole batch is rejected.
var ErrResultCount = fmt.Errorf("%w: unexpected number of multicall results", abicodec.ErrDecoding)

// DecodeBatchResult decodes the (bool success, bytes returnData)[] array
// returned by tryAggregate.
func DecodeBatchResult(raw []byte, expectedCount int) ([]outbound.Result, error) {
	parsed, err := multicallABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load multicall ABI: %w", err)
	}

	unpacked, err := parsed.Unpack(tryAggregateMethod, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding tryAggregate response: %w", abicodec.ErrDecoding, err)
	}
	if len(unpacked) != 1 {
		return nil, fmt.Errorf("%w: tryAggregate returned %d values", abicodec.ErrDecoding, len(unpacked))
	}

	resultsRaw, ok := unpacked[0].([]struct {
		Success    bool   `json:"success"`
		ReturnData []byte `json:"returnData"`
	})
	if !ok {
		return nil, fmt.Errorf("%w: tryAggregate results decoded as %T", abicodec.ErrDecoding, unpacked[0])
	}
	if len(resultsRaw) != expectedCount {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrResultCount, expectedCount, len(resultsRaw))
	}

	results := make([]outbound.Result, len(resultsRaw))
	for i, r := range resultsRaw {
		results[i] = outbound.Result{
			Success:    r.Success,
			ReturnData: r.ReturnData,
		}
	}
	return results, nil
}

// DecodeScalar decodes a subcall's return data as outputs.
//
// A failed subcall yields Unavailable and no error, whatever its payload: the
// bytes of a reverted call are not a return value. A successful subcall
// whose data does not decode yields Unavailable together with an error
// wrapping abicodec.ErrDecoding.
func DecodeScalar(result outbound.Result, outputs []abicodec.Type) (Value, error) {
	if !result.Success {
		return Unavailable(), nil
	}

	values, err := abicodec.Decode(outputs, result.ReturnData)
	if err != nil {
		return Unavailable(), err
	}
	if len(values) == 1 {
		return NewValue(values[0]), nil
	}
	return NewValue(values), nil
}
