package codec

import (
	"net/url"
	"strings"

	"pricestream/internal/domain"
)

const finnhubURL = "wss://ws.finnhub.io"

type finnhubSubscribe struct {
	Type         string `json:"type"`
	Symbol       string `json:"symbol"`
	Subscription string `json:"subscription"`
}

type finnhubUnsubscribe struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Finnhub is the stock trade feed: one subscribe frame per symbol, a single
// comma-joined unsubscribe, token passed as a query parameter.
type Finnhub struct{}

func (Finnhub) Name() string        { return "finnhub" }
func (Finnhub) DefaultURL() string  { return finnhubURL }
func (Finnhub) TrackPrevious() bool { return false }

func (Finnhub) Endpoint(base, token string) (string, error) {
	if base == "" {
		base = finnhubURL
	}
	if err := validToken(token); err != nil {
		return "", &domain.EndpointError{URL: base, Err: err}
	}
	return buildEndpoint(base, url.Values{"token": {token}})
}

func (Finnhub) EncodeSubscribe(symbols []string) []Frame {
	frames := make([]Frame, 0, len(symbols))
	for _, s := range symbols {
		frames = append(frames, encodeFrame("subscribe", []string{s}, finnhubSubscribe{
			Type:         "subscribe",
			Symbol:       s,
			Subscription: "trade",
		}))
	}
	return frames
}

func (Finnhub) EncodeUnsubscribe(symbols []string) []Frame {
	if len(symbols) == 0 {
		return nil
	}
	return []Frame{encodeFrame("unsubscribe", symbols, finnhubUnsubscribe{
		Type:   "unsubscribe",
		Symbol: strings.Join(symbols, ","),
	})}
}

func (Finnhub) Decode(messageType int, data []byte) domain.InboundMessage {
	obj, ok := NormalizeFrame(messageType, data)
	if !ok {
		return domain.Unknown()
	}

	switch obj["type"] {
	case "error":
		msg := stringField(obj, "msg", "message")
		if msg == "" {
			msg = "Unknown WebSocket error"
		}
		return domain.InboundMessage{Kind: domain.MessageError, Text: msg}
	case "ping":
		return domain.InboundMessage{Kind: domain.MessagePing}
	case "welcome":
		return domain.InboundMessage{Kind: domain.MessageWelcome}
	case "confirmation":
		symbol, _ := ResolveSymbol(obj, SymbolKeys)
		return domain.InboundMessage{Kind: domain.MessageConfirmation, Symbol: symbol}
	}

	// Any frame carrying a data list is treated as trades, whatever its type.
	if items, ok := obj["data"].([]any); ok {
		return tradeMessage(decodeTrades(items, SymbolKeys))
	}
	return domain.Unknown()
}
