package domain

import "strings"

// NormalizeSymbol strips an exchange prefix ("BINANCE:BTCUSDT" -> "BTCUSDT").
// Only the part after the final colon is kept. Surrounding whitespace is trimmed.
func NormalizeSymbol(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if idx := strings.LastIndex(symbol, ":"); idx >= 0 {
		return strings.TrimSpace(symbol[idx+1:])
	}
	return symbol
}

// CleanSymbols trims, drops empty entries and de-duplicates while keeping
// first-seen order. The identifiers are not normalized: the wire needs the
// exchange prefix.
func CleanSymbols(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
