package codec

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"pricestream/internal/domain"
)

// Frame is one encoded outbound message. Err is set instead of Data when the
// frame could not be serialized; it only concerns Symbols.
type Frame struct {
	Op      string
	Data    []byte
	Symbols []string
	Err     error
}

// Dialect holds the wire rules of one feed provider.
type Dialect interface {
	Name() string
	DefaultURL() string
	Endpoint(base, token string) (string, error)
	EncodeSubscribe(symbols []string) []Frame
	EncodeUnsubscribe(symbols []string) []Frame
	Decode(messageType int, data []byte) domain.InboundMessage
	TrackPrevious() bool
}

// Lookup resolves a dialect by provider name.
func Lookup(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "finnhub", "":
		return Finnhub{}, nil
	case "coinbase":
		return Coinbase{}, nil
	case "echo":
		return Echo{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDialect, name)
	}
}

func encodeFrame(op string, symbols []string, msg any) Frame {
	data, err := json.Marshal(msg)
	if err != nil {
		return Frame{Op: op, Symbols: symbols, Err: &domain.EncodingError{Op: op, Symbols: symbols, Err: err}}
	}
	return Frame{Op: op, Data: data, Symbols: symbols}
}

// buildEndpoint validates base and appends query parameters.
func buildEndpoint(base string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", &domain.EndpointError{URL: base, Err: err}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", &domain.EndpointError{URL: base, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return "", &domain.EndpointError{URL: base, Err: fmt.Errorf("missing host")}
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func validToken(token string) error {
	if token == "" {
		return fmt.Errorf("missing token")
	}
	if strings.ContainsFunc(token, func(r rune) bool { return r <= ' ' || r == 0x7f }) {
		return fmt.Errorf("malformed token")
	}
	return nil
}
