package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetMulticallABI returns the subset of the Multicall2/Multicall3 ABI used for
// batched reads: tryAggregate and the block accessors.
func GetMulticallABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [
				{"name": "requireSuccess", "type": "bool"},
				{
					"components": [
						{"name": "target", "type": "address"},
						{"name": "callData", "type": "bytes"}
					],
					"name": "calls",
					"type": "tuple[]"
				}
			],
			"name": "tryAggregate",
			"outputs": [
				{
					"components": [
						{"name": "success", "type": "bool"},
						{"name": "returnData", "type": "bytes"}
					],
					"name": "returnData",
					"type": "tuple[]"
				}
			],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "getBlockNumber",
			"outputs": [{"name": "blockNumber", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "getCurrentBlockTimestamp",
			"outputs": [{"name": "timestamp", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
