package ledger

import "math/big"

// IdentityVaultABI is the interface of the deployed IdentityVault contract.
const IdentityVaultABI = `[
  {
    "type": "function",
    "name": "storeIdentity",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "identityHash", "type": "string"},
      {"name": "sourceChain", "type": "string"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "shareIdentity",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "recipient", "type": "address"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getIdentity",
    "stateMutability": "view",
    "inputs": [
      {"name": "user", "type": "address"}
    ],
    "outputs": [
      {
        "name": "",
        "type": "tuple",
        "internalType": "struct IdentityVault.Identity",
        "components": [
          {"name": "identityHash", "type": "string"},
          {"name": "sourceChain", "type": "string"},
          {"name": "timestamp", "type": "uint256"},
          {"name": "isActive", "type": "bool"},
          {"name": "isShared", "type": "bool"}
        ]
      }
    ]
  }
]`

// identityTuple mirrors IdentityVault.Identity for ABI decoding.
type identityTuple struct {
	IdentityHash string
	SourceChain  string
	Timestamp    *big.Int
	IsActive     bool
	IsShared     bool
}

const (
	methodStore = "storeIdentity"
	methodShare = "shareIdentity"
	methodGet   = "getIdentity"
)
