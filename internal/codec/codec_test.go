package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"pricestream/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinnhub_Decode(t *testing.T) {
	d := Finnhub{}

	tests := []struct {
		name  string
		frame string
		want  domain.InboundMessage
	}{
		{
			name:  "field priority first match wins",
			frame: `{"type":"trade","data":[{"s":"AAPL","symbol":"IGNORED","p":101.5,"price":999}]}`,
			want: domain.InboundMessage{Kind: domain.MessageTrade, Trades: []domain.PriceUpdate{
				{Symbol: "AAPL", Price: 101.5},
			}},
		},
		{
			name:  "fallback keys and prefix cleanup",
			frame: `{"type":"trade","data":[{"ticker":"BINANCE:BTCUSDT","last":42000.5},{"symbol":"MSFT","c":"50"}]}`,
			want: domain.InboundMessage{Kind: domain.MessageTrade, Trades: []domain.PriceUpdate{
				{Symbol: "BTCUSDT", Price: 42000.5},
				{Symbol: "MSFT", Price: 50},
			}},
		},
		{
			name:  "batched trades keep frame order",
			frame: `{"type":"trade","data":[{"s":"AAPL","p":100.0},{"s":"MSFT","p":50.0}]}`,
			want: domain.InboundMessage{Kind: domain.MessageTrade, Trades: []domain.PriceUpdate{
				{Symbol: "AAPL", Price: 100},
				{Symbol: "MSFT", Price: 50},
			}},
		},
		{
			name:  "unusable records are skipped",
			frame: `{"type":"trade","data":[{"s":"AAPL"},{"p":1},"x",{"s":"TSLA","p":"abc","price":12}]}`,
			want: domain.InboundMessage{Kind: domain.MessageTrade, Trades: []domain.PriceUpdate{
				{Symbol: "TSLA", Price: 12},
			}},
		},
		{
			name:  "out of range numbers fall through to the next key",
			frame: `{"type":"trade","data":[{"s":"AAPL","p":1e400,"price":5},{"s":"MSFT","p":"-1e400"}]}`,
			want: domain.InboundMessage{Kind: domain.MessageTrade, Trades: []domain.PriceUpdate{
				{Symbol: "AAPL", Price: 5},
			}},
		},
		{
			name:  "no usable records",
			frame: `{"type":"trade","data":[{"s":"AAPL"}]}`,
			want:  domain.Unknown(),
		},
		{
			name:  "error frame",
			frame: `{"type":"error","msg":"Invalid symbol"}`,
			want:  domain.InboundMessage{Kind: domain.MessageError, Text: "Invalid symbol"},
		},
		{
			name:  "error frame without message",
			frame: `{"type":"error"}`,
			want:  domain.InboundMessage{Kind: domain.MessageError, Text: "Unknown WebSocket error"},
		},
		{name: "ping", frame: `{"type":"ping"}`, want: domain.InboundMessage{Kind: domain.MessagePing}},
		{name: "welcome", frame: `{"type":"welcome"}`, want: domain.InboundMessage{Kind: domain.MessageWelcome}},
		{
			name:  "confirmation",
			frame: `{"type":"confirmation","symbol":"AAPL"}`,
			want:  domain.InboundMessage{Kind: domain.MessageConfirmation, Symbol: "AAPL"},
		},
		{name: "unknown type", frame: `{"type":"news"}`, want: domain.Unknown()},
		{name: "not an object", frame: `[1,2,3]`, want: domain.Unknown()},
		{name: "garbage", frame: `{"type":`, want: domain.Unknown()},
		{name: "empty", frame: ``, want: domain.Unknown()},
		{name: "trailing garbage", frame: `{"type":"ping"}garbage`, want: domain.Unknown()},
		{name: "second object", frame: `{"type":"ping"}{"type":"ping"}`, want: domain.Unknown()},
		{name: "trailing whitespace", frame: "{\"type\":\"ping\"}\n ", want: domain.InboundMessage{Kind: domain.MessagePing}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Decode(websocket.TextMessage, []byte(tt.frame)))
			// Binary frames decode the same way.
			assert.Equal(t, tt.want, d.Decode(websocket.BinaryMessage, []byte(tt.frame)))
		})
	}
}

func TestFinnhub_Encode(t *testing.T) {
	d := Finnhub{}

	frames := d.EncodeSubscribe([]string{"AAPL", "BINANCE:BTCUSDT"})
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"type":"subscribe","symbol":"AAPL","subscription":"trade"}`, string(frames[0].Data))
	assert.JSONEq(t, `{"type":"subscribe","symbol":"BINANCE:BTCUSDT","subscription":"trade"}`, string(frames[1].Data))
	assert.Equal(t, []string{"BINANCE:BTCUSDT"}, frames[1].Symbols)

	unsub := d.EncodeUnsubscribe([]string{"AAPL", "MSFT"})
	require.Len(t, unsub, 1)
	assert.JSONEq(t, `{"type":"unsubscribe","symbol":"AAPL,MSFT"}`, string(unsub[0].Data))
	assert.Nil(t, d.EncodeUnsubscribe(nil))
}

func TestFinnhub_Endpoint(t *testing.T) {
	d := Finnhub{}

	got, err := d.Endpoint("", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "wss://ws.finnhub.io?token=abc123", got)

	badInputs := []struct {
		name, base, token string
	}{
		{"missing token", "wss://ws.finnhub.io", ""},
		{"malformed token", "wss://ws.finnhub.io", "abc 123"},
		{"bad scheme", "https://ws.finnhub.io", "abc"},
		{"missing host", "wss://", "abc"},
		{"unparseable", "wss://[::1", "abc"},
	}
	for _, tt := range badInputs {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Endpoint(tt.base, tt.token)
			var endpointErr *domain.EndpointError
			require.True(t, errors.As(err, &endpointErr), "got %v", err)
			assert.False(t, domain.IsRetriable(err))
		})
	}
}

func TestCoinbase(t *testing.T) {
	d := Coinbase{}

	frames := d.EncodeSubscribe([]string{"BTC-USD", "ETH-USD"})
	require.Len(t, frames, 1)
	assert.JSONEq(t,
		`{"type":"subscribe","channels":[{"name":"ticker","product_ids":["BTC-USD","ETH-USD"]}]}`,
		string(frames[0].Data))

	msg := d.Decode(websocket.TextMessage, []byte(`{"type":"ticker","product_id":"BTC-USD","price":"43250.12","sequence":1}`))
	assert.Equal(t, domain.InboundMessage{Kind: domain.MessageTrade, Trades: []domain.PriceUpdate{
		{Symbol: "BTC-USD", Price: 43250.12},
	}}, msg)

	// product_id outranks the generic symbol keys
	msg = d.Decode(websocket.TextMessage, []byte(`{"type":"ticker","symbol":"OTHER","product_id":"ETH-USD","price":"1"}`))
	assert.Equal(t, domain.InboundMessage{Kind: domain.MessageTrade, Trades: []domain.PriceUpdate{
		{Symbol: "ETH-USD", Price: 1},
	}}, msg)

	assert.Equal(t, domain.MessageError,
		d.Decode(websocket.TextMessage, []byte(`{"type":"error","message":"Failed to subscribe"}`)).Kind)
	assert.Equal(t, domain.MessageUnknown,
		d.Decode(websocket.TextMessage, []byte(`{"type":"ticker","product_id":"BTC-USD","price":"n/a"}`)).Kind)
	assert.True(t, d.TrackPrevious())

	url, err := d.Endpoint("", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "wss://ws-feed.exchange.coinbase.com", url)
}

func TestEcho(t *testing.T) {
	d := Echo{}
	assert.Equal(t, domain.InboundMessage{Kind: domain.MessageChat, Text: "hello"},
		d.Decode(websocket.TextMessage, []byte("hello")))
	assert.Equal(t, domain.MessageUnknown, d.Decode(websocket.BinaryMessage, []byte("hello")).Kind)
	assert.Empty(t, d.EncodeSubscribe([]string{"AAPL"}))
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"finnhub", "Coinbase", " echo "} {
		d, err := Lookup(name)
		require.NoError(t, err)
		assert.NotNil(t, d)
	}

	_, err := Lookup("kraken")
	assert.ErrorIs(t, err, domain.ErrUnknownDialect)
}

func TestEncodeFrame_Error(t *testing.T) {
	f := encodeFrame("subscribe", []string{"AAPL"}, map[string]any{"bad": make(chan int)})
	require.Error(t, f.Err)
	var encErr *domain.EncodingError
	require.ErrorAs(t, f.Err, &encErr)
	assert.Equal(t, []string{"AAPL"}, encErr.Symbols)
	assert.Nil(t, f.Data)

	var unsupported *json.UnsupportedTypeError
	assert.ErrorAs(t, f.Err, &unsupported)
}
