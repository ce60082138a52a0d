package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetMarketABI returns the read accessors of a Compound-style money market token.
func GetMarketABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"constant": true,
			"inputs": [],
			"name": "supplyRatePerBlock",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"constant": true,
			"inputs": [],
			"name": "totalSupply",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"constant": true,
			"inputs": [],
			"name": "exchangeRateStored",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}

// GetPriceOracleABI returns the ABI of the oracle pricing each market's underlying asset.
func GetPriceOracleABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [{"name": "cToken", "type": "address"}],
			"name": "getUnderlyingPrice",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}

// GetRewardControllerABI returns the ABI of the controller distributing supply rewards.
func GetRewardControllerABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"constant": true,
			"inputs": [{"name": "", "type": "address"}],
			"name": "compSupplySpeeds",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}

// GetAnchoredViewABI returns the ABI of the anchored view pricing the reward token by symbol.
func GetAnchoredViewABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [{"name": "symbol", "type": "string"}],
			"name": "price",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
