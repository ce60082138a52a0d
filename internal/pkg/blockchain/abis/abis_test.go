package abis

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func TestABIs_MethodIDs(t *testing.T) {
	tests := []struct {
		name   string
		load   func() (*abi.ABI, error)
		method string
		want   string
	}{
		{"tryAggregate", GetMulticallABI, "tryAggregate", "bce38bd7"},
		{"getBlockNumber", GetMulticallABI, "getBlockNumber", "42cbb15c"},
		{"getCurrentBlockTimestamp", GetMulticallABI, "getCurrentBlockTimestamp", "0f28c97d"},
		{"supplyRatePerBlock", GetMarketABI, "supplyRatePerBlock", "ae9d70b0"},
		{"totalSupply", GetMarketABI, "totalSupply", "18160ddd"},
		{"exchangeRateStored", GetMarketABI, "exchangeRateStored", "182df0f5"},
		{"getUnderlyingPrice", GetPriceOracleABI, "getUnderlyingPrice", "fc57d4df"},
		{"compSupplySpeeds", GetRewardControllerABI, "compSupplySpeeds", "6aa875b5"},
		{"price", GetAnchoredViewABI, "price", "fe2c6198"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := tt.load()
			if err != nil {
				t.Fatalf("loading ABI: %v", err)
			}
			m, err := Method(parsed, tt.method)
			if err != nil {
				t.Fatal(err)
			}
			if got := hex.EncodeToString(m.ID); got != tt.want {
				t.Errorf("ID = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseABI_InvalidJSON(t *testing.T) {
	if _, err := ParseABI(`[{"type": "function", "name": `); err == nil {
		t.Error("expected error for truncated ABI JSON")
	}
}

func TestMethod_Unknown(t *testing.T) {
	parsed, err := GetMarketABI()
	if err != nil {
		t.Fatalf("loading ABI: %v", err)
	}
	if _, err := Method(parsed, "borrowRatePerBlock"); err == nil {
		t.Error("expected error for a method the ABI does not declare")
	}
}
