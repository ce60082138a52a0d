package outbound

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrTransport marks failures of the RPC round trip itself. Adapters wrap
// every network or node error with it so callers can tell transport
// failures from encoding and decoding failures.
var ErrTransport = errors.New("transport error")

// Transport performs a single eth_call. A nil blockNumber means "latest".
type Transport interface {
	Call(ctx context.Context, to common.Address, data []byte, blockNumber *big.Int) ([]byte, error)
}

// CalldataLimiter is implemented by transports that cannot carry arbitrarily
// large payloads. MaxCalldataSize returns the largest calldata item, in
// bytes, the transport accepts; 0 means no limit.
type CalldataLimiter interface {
	MaxCalldataSize() int
}

// BlockNumberReader returns the chain head.
type BlockNumberReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}
