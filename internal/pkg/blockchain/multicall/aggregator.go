package multicall

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/multiread/internal/pkg/abicodec"
	"github.com/archon-research/multiread/internal/pkg/blockchain/abis"
)

const tryAggregateMethod = "tryAggregate"

const (
	// DefaultAddressHex is the canonical Multicall3 deployment, which keeps
	// the tryAggregate entry point and block accessors of Multicall2.
	DefaultAddressHex = "0xcA11bde05977b3631167028862bE2a173976CA11"
)

var (
	DefaultAddress = common.HexToAddress(DefaultAddressHex)

	// multicallABI packs and unpacks tryAggregate, which runs every call and
	// reports per-call success instead of reverting unless requireSuccess is set.
	multicallABI = sync.OnceValues(abis.GetMulticallABI)

	GetBlockNumber           = abicodec.MustParseSignature("getBlockNumber()(uint256)")
	GetCurrentBlockTimestamp = abicodec.MustParseSignature("getCurrentBlockTimestamp()(uint256)")
)
