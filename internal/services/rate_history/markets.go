package rate_history

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/multiread/internal/pkg/abicodec"
	"github.com/archon-research/multiread/internal/pkg/blockchain/multicall"
)

// Mainnet deployments the history reads from by default.
const (
	DefaultPriceOracleHex      = "0x7c37BF8dBd4Ae90cdf45d382cEB1580c5d9300CC"
	DefaultRewardControllerHex = "0x5CB93C0AdE6B7F2760Ec4389833B0cCcb5e4efDa"
	DefaultAnchoredViewHex     = "0x16E340A4aa8b9089D0804010168986b624C805Bb"
	DefaultRewardSymbol        = "BANANA"
)

var (
	SupplyRatePerBlock = abicodec.MustParseSignature("supplyRatePerBlock()(uint256)")
	TotalSupply        = abicodec.MustParseSignature("totalSupply()(uint256)")
	ExchangeRateStored = abicodec.MustParseSignature("exchangeRateStored()(uint256)")
	GetUnderlyingPrice = abicodec.MustParseSignature("getUnderlyingPrice(address)(uint256)")
	CompSupplySpeeds   = abicodec.MustParseSignature("compSupplySpeeds(address)(uint256)")
	Price              = abicodec.MustParseSignature("price(string)(uint256)")
)

// Field label suffixes and fixed labels of a snapshot.
const (
	SuffixTotalSupply      = "_total_supply"
	SuffixExchangeRate     = "_exchange_rate"
	SuffixPrice            = "_price"
	SuffixCompSupplySpeeds = "_comp_supply_speeds"

	FieldBlockNumber    = "blockNumber"
	FieldBlockTimestamp = "blockTimestamp"
)

// Markets is the set of lending markets a snapshot covers, plus the
// contracts that price them and pay their rewards.
type Markets struct {
	Markets          []common.Address
	PriceOracle      common.Address
	RewardController common.Address
	AnchoredView     common.Address
	RewardSymbol     string
}

// DefaultMarkets returns markets wired to the default mainnet deployments.
func DefaultMarkets(markets []common.Address) Markets {
	return Markets{
		Markets:          markets,
		PriceOracle:      common.HexToAddress(DefaultPriceOracleHex),
		RewardController: common.HexToAddress(DefaultRewardControllerHex),
		AnchoredView:     common.HexToAddress(DefaultAnchoredViewHex),
		RewardSymbol:     DefaultRewardSymbol,
	}
}

// Requests returns the reads of one snapshot in batch order: the three
// per-market accessors, the oracle price and reward speed per market, the
// reward token price, then the aggregator's own block number and timestamp.
func (m Markets) Requests(aggregator common.Address) []multicall.Request {
	return []multicall.Request{
		multicall.PerTarget(SupplyRatePerBlock, m.Markets, ""),
		multicall.PerTarget(TotalSupply, m.Markets, SuffixTotalSupply),
		multicall.PerTarget(ExchangeRateStored, m.Markets, SuffixExchangeRate),
		multicall.ByArgument(GetUnderlyingPrice, m.PriceOracle, m.Markets, SuffixPrice),
		multicall.ByArgument(CompSupplySpeeds, m.RewardController, m.Markets, SuffixCompSupplySpeeds),
		multicall.Single(Price, m.AnchoredView, m.RewardSymbol+SuffixPrice, m.RewardSymbol),
		multicall.Single(multicall.GetBlockNumber, aggregator, FieldBlockNumber),
		multicall.Single(multicall.GetCurrentBlockTimestamp, aggregator, FieldBlockTimestamp),
	}
}

// FieldCount is the number of fields one snapshot holds.
func (m Markets) FieldCount() int {
	return 5*len(m.Markets) + 3
}
