package venue

import "fmt"

// Mint describes one SPL token: its mint address and on-chain decimals,
// needed to convert between UI amounts and raw units.
type Mint struct {
	Address  string
	Decimals int32
}

// TokenRegistry resolves symbolic asset identifiers (as carried on orders)
// to mints. The set is fixed at startup configuration.
type TokenRegistry struct {
	mints map[string]Mint
}

// DefaultTokens returns a registry covering the mainnet assets the service
// routes today.
func DefaultTokens() *TokenRegistry {
	return &TokenRegistry{mints: map[string]Mint{
		"SOL":  {Address: "So11111111111111111111111111111111111111112", Decimals: 9},
		"USDC": {Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
		"USDT": {Address: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6},
	}}
}

// Register adds or replaces a symbol mapping.
func (r *TokenRegistry) Register(symbol string, m Mint) {
	r.mints[symbol] = m
}

// Resolve maps a symbol to its mint.
func (r *TokenRegistry) Resolve(symbol string) (Mint, error) {
	m, ok := r.mints[symbol]
	if !ok {
		return Mint{}, fmt.Errorf("unknown token %q", symbol)
	}
	return m, nil
}
