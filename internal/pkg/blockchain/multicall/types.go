package multicall

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/archon-research/multiread/internal/domain/entity"
	"github.com/archon-research/multiread/internal/pkg/abicodec"
	"github.com/archon-research/multiread/internal/ports/outbound"
)

// Descriptor is one encoded subcall together with the output types its
// return data is decoded with.
type Descriptor struct {
	Target   common.Address
	CallData []byte
	Outputs  []abicodec.Type
}

// Call returns the descriptor in the form sent to the aggregator.
func (d Descriptor) Call() outbound.Call {
	return outbound.Call{Target: d.Target, CallData: d.CallData}
}

// Calls converts descriptors to aggregator calls, preserving order.
func Calls(descriptors []Descriptor) []outbound.Call {
	calls := make([]outbound.Call, len(descriptors))
	for i, d := range descriptors {
		calls[i] = d.Call()
	}
	return calls
}

// Value is a decoded subcall result, or the unavailable marker when the
// subcall failed. The zero Value is unavailable.
type Value struct {
	v  any
	ok bool
}

// Unavailable returns the marker for a failed subcall.
func Unavailable() Value {
	return Value{}
}

// NewValue wraps a decoded value. Single outputs are stored as-is, multiple
// outputs as []any.
func NewValue(v any) Value {
	return Value{v: v, ok: true}
}

// Available reports whether the subcall succeeded and decoded.
func (v Value) Available() bool {
	return v.ok
}

// Raw returns the decoded Go value, nil when unavailable.
func (v Value) Raw() any {
	return v.v
}

// BigInt returns the value as an integer when it holds a uint256.
func (v Value) BigInt() (*big.Int, bool) {
	if !v.ok {
		return nil, false
	}
	n, ok := v.v.(*big.Int)
	return n, ok
}

// String renders integers as exact decimal strings, addresses and bytes as
// hex and failed subcalls as "unavailable".
func (v Value) String() string {
	if !v.ok {
		return entity.Unavailable
	}
	return formatValue(v.v)
}

// MarshalJSON encodes the value as its String form so 256-bit integers keep
// full precision.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func formatValue(v any) string {
	switch x := v.(type) {
	case *big.Int:
		return x.String()
	case common.Address:
		return x.Hex()
	case []byte:
		return hexutil.Encode(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatValue(e)
		}
		return "(" + strings.Join(parts, ",") + ")"
	case [][]any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprint(x)
	}
}

// Strings renders every value with String.
func Strings(values map[string]Value) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v.String()
	}
	return out
}
