package adapter

// knownTokens maps well-known mints to their Pyth price feed ID and symbol.
// Mints outside this map price at 0 and display a truncated mint as symbol.
var knownTokens = map[string]struct {
	Symbol      string
	PriceFeedID string
}{
	"So11111111111111111111111111111111111111112": {
		Symbol:      "SOL",
		PriceFeedID: "0xef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
	},
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": {
		Symbol:      "USDC",
		PriceFeedID: "0xeaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a",
	},
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": {
		Symbol:      "USDT",
		PriceFeedID: "0x2b89b9dc8fdf9f34709a5b106b472f0f39bb6ca9ce04b0fd7f2e971688e2e53b",
	},
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So": {
		Symbol:      "mSOL",
		PriceFeedID: "0xc2289a6a43d2ce728c89b98de0c2cd82d3e5a95f2a1e9cc71e0b50c2c8d8e3e9",
	},
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": {
		Symbol:      "BONK",
		PriceFeedID: "0x3f5a0b0f0d5d7b1e3e0c4b3a4b5d7e2d7b0d9c7e1b8f5a4d3c2b1a0e9f8d7c6",
	},
}

// SymbolForMint returns the display symbol for a mint, falling back to a
// truncated mint address for unrecognized tokens
func SymbolForMint(mint string) string {
	if token, ok := knownTokens[mint]; ok {
		return token.Symbol
	}
	if len(mint) > 8 {
		return mint[:8]
	}
	return mint
}

// priceFeedForMint returns the Pyth price feed ID for a mint, if known
func priceFeedForMint(mint string) (string, bool) {
	token, ok := knownTokens[mint]
	if !ok {
		return "", false
	}
	return token.PriceFeedID, true
}
