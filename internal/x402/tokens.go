package x402

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes a settlement asset on one network: its on-chain
// mint/contract address and decimal precision.
type Token struct {
	Symbol   string
	Address  string
	Decimals int
	// EIP-712 domain name/version for EVM permit-style settlement.
	Name    string
	Version string
}

// tokenRegistry is the closed set of (network, symbol) pairs the service
// can charge in. A configured pair that is absent here is a fatal
// configuration error at startup.
var tokenRegistry = map[Network]map[string]Token{
	NetworkSolanaMainnet: {
		"USDC": {Symbol: "USDC", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
	},
	NetworkSolanaDevnet: {
		"USDC": {Symbol: "USDC", Address: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU", Decimals: 6},
	},
	NetworkBase: {
		"USDC": {Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6, Name: "USD Coin", Version: "2"},
	},
	NetworkBaseSepolia: {
		"USDC": {Symbol: "USDC", Address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", Decimals: 6, Name: "USDC", Version: "2"},
	},
}

// ResolveToken looks up the on-chain metadata for an asset symbol on a
// network.
func ResolveToken(network Network, symbol string) (Token, error) {
	tokens, ok := tokenRegistry[network]
	if !ok {
		return Token{}, fmt.Errorf("no token registry for network %q", network)
	}
	tok, ok := tokens[symbol]
	if !ok {
		return Token{}, fmt.Errorf("unknown asset %q on network %q", symbol, network)
	}
	return tok, nil
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func isBase58(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return len(s) > 0
}

// ValidateAddress checks that addr is syntactically plausible as a payee
// address for the network's family. It does not prove the account exists
// on chain.
func ValidateAddress(network Network, addr string) error {
	kind, err := network.Kind()
	if err != nil {
		return err
	}
	switch kind {
	case KindSolana:
		// Base58-encoded ed25519 public keys are 32 bytes, 32-44 chars.
		if len(addr) < 32 || len(addr) > 44 || !isBase58(addr) {
			return fmt.Errorf("invalid solana address %q", addr)
		}
	case KindEVM:
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid EVM address %q", addr)
		}
	}
	return nil
}
