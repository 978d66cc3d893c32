package chain

// channelContractABI describes the subset of the shared-ledger unidirectional
// payment-channel contract this engine drives: opening, topping up, and
// claiming a channel, plus the public `channels` accessor used to read state.
// The contract itself is out of scope; this is the calling
// convention Adapter assumes.
const channelContractABI = `[
	{
		"name": "open",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [
			{"name": "channelId", "type": "bytes32"},
			{"name": "receiver", "type": "address"},
			{"name": "disputePeriod", "type": "uint256"}
		],
		"outputs": []
	},
	{
		"name": "deposit",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [
			{"name": "channelId", "type": "bytes32"}
		],
		"outputs": []
	},
	{
		"name": "claim",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "channelId", "type": "bytes32"},
			{"name": "spent", "type": "uint256"},
			{"name": "signature", "type": "bytes"}
		],
		"outputs": []
	},
	{
		"name": "channels",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "channelId", "type": "bytes32"}
		],
		"outputs": [
			{"name": "sender", "type": "address"},
			{"name": "receiver", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "disputePeriod", "type": "uint256"},
			{"name": "disputedUntil", "type": "uint256"}
		]
	}
]`
