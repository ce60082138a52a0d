package multicall

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/archon-research/multiread/internal/ports/outbound"
)

// Compile-time check that DirectCaller implements outbound.Multicaller
var _ outbound.Multicaller = (*DirectCaller)(nil)

// DirectCaller implements outbound.Multicaller without the aggregator
// contract: every call becomes its own eth_call, and all of them travel in a
// single JSON-RPC batch via rpc.BatchCallContext. It serves chains or blocks
// where the aggregator is not deployed.
//
// Per-call errors follow tryAggregate semantics: they mark the result as
// failed unless requireSuccess is set, in which case the batch fails.
type DirectCaller struct {
	rpcClient      *rpc.Client
	requireSuccess bool
}

// NewDirectCaller creates a new DirectCaller from an rpc client.
func NewDirectCaller(rpcClient *rpc.Client, requireSuccess bool) *DirectCaller {
	return &DirectCaller{rpcClient: rpcClient, requireSuccess: requireSuccess}
}

// ethCallArg mirrors go-ethereum's internal callMsg JSON encoding for eth_call.
type ethCallArg struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// Execute sends all calls in a single JSON-RPC batch request.
func (c *DirectCaller) Execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	if len(calls) == 0 {
		return nil, ErrEmptyBatch
	}

	blockArg := toBlockNumArg(blockNumber)

	elems := make([]rpc.BatchElem, len(calls))
	hexResults := make([]hexutil.Bytes, len(calls))

	for i, call := range calls {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				ethCallArg{To: call.Target, Data: call.CallData},
				blockArg,
			},
			Result: &hexResults[i],
		}
	}

	if err := c.rpcClient.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("%w: batch eth_call failed: %w", outbound.ErrTransport, err)
	}

	results := make([]outbound.Result, len(calls))
	for i, elem := range elems {
		if elem.Error != nil {
			if c.requireSuccess {
				return nil, fmt.Errorf("%w: direct call %d to %s failed: %w",
					outbound.ErrTransport, i, calls[i].Target.Hex(), elem.Error)
			}
			results[i] = outbound.Result{Success: false}
			continue
		}
		results[i] = outbound.Result{
			Success:    true,
			ReturnData: hexResults[i],
		}
	}

	return results, nil
}

// Address returns a zero address since DirectCaller doesn't use a contract.
func (c *DirectCaller) Address() common.Address {
	return common.Address{}
}

func toBlockNumArg(number *big.Int) string {
	if number == nil {
		return "latest"
	}
	if number.Sign() >= 0 {
		return hexutil.EncodeBig(number)
	}
	return "latest"
}
