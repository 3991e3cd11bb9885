package codec

import (
	"bytes"
	"encoding/json"
	"io"
	"math"

	"pricestream/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Field fallback lists. Order is significant: the first key holding a usable
// value wins.
var (
	SymbolKeys = []string{"s", "symbol", "ticker"}
	PriceKeys  = []string{"p", "price", "last", "c"}
)

// NormalizeFrame turns a text or binary frame into a JSON object.
// Anything that is not a JSON object yields ok == false.
func NormalizeFrame(messageType int, data []byte) (map[string]any, bool) {
	if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
		return nil, false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	// Trailing bytes invalidate the whole frame
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return obj, true
}

// ResolveSymbol returns the first string value among keys, with any exchange
// prefix removed.
func ResolveSymbol(record map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := record[k].(string); ok {
			return domain.NormalizeSymbol(s), true
		}
	}
	return "", false
}

// ResolvePrice returns the first numeric value among keys. Numeric strings
// ("101.25") are accepted; other strings are skipped like absent keys.
func ResolvePrice(record map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		if p, ok := toPrice(record[k]); ok {
			return p, true
		}
	}
	return 0, false
}

// toPrice converts a JSON number or numeric string. Values outside the
// float64 range are rejected.
func toPrice(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return 0, false
		}
		f = d.InexactFloat64()
	case float64:
		f = val
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return 0, false
		}
		f = d.InexactFloat64()
	default:
		return 0, false
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// decodeTrades decodes a list of trade records. Records without a symbol or
// price are skipped. Order follows the frame.
func decodeTrades(items []any, symbolKeys []string) []domain.PriceUpdate {
	var trades []domain.PriceUpdate
	for _, item := range items {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}
		symbol, ok := ResolveSymbol(record, symbolKeys)
		if !ok || symbol == "" {
			continue
		}
		price, ok := ResolvePrice(record, PriceKeys)
		if !ok {
			continue
		}
		trades = append(trades, domain.PriceUpdate{Symbol: symbol, Price: price})
	}
	return trades
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func tradeMessage(trades []domain.PriceUpdate) domain.InboundMessage {
	if len(trades) == 0 {
		return domain.Unknown()
	}
	return domain.InboundMessage{Kind: domain.MessageTrade, Trades: trades}
}
