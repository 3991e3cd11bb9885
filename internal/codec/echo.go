package codec

import (
	"net/url"

	"pricestream/internal/domain"

	"github.com/gorilla/websocket"
)

const echoURL = "wss://echo.websocket.events"

// Echo is the chat demo feed. It has no subscriptions; text frames are chat.
type Echo struct{}

func (Echo) Name() string        { return "echo" }
func (Echo) DefaultURL() string  { return echoURL }
func (Echo) TrackPrevious() bool { return false }

func (Echo) Endpoint(base, _ string) (string, error) {
	if base == "" {
		base = echoURL
	}
	return buildEndpoint(base, url.Values{})
}

func (Echo) EncodeSubscribe([]string) []Frame   { return nil }
func (Echo) EncodeUnsubscribe([]string) []Frame { return nil }

func (Echo) Decode(messageType int, data []byte) domain.InboundMessage {
	if messageType != websocket.TextMessage {
		return domain.Unknown()
	}
	return domain.InboundMessage{Kind: domain.MessageChat, Text: string(data)}
}
