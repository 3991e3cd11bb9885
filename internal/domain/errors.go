package domain

import (
	"errors"
	"fmt"
	"strings"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "dial", "read", "ping")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// EndpointError is returned when the feed URL cannot be built (bad base URL
// or token). It fails the connect attempt but leaves the client usable.
type EndpointError struct {
	URL string
	Err error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("invalid endpoint %q: %v", e.URL, e.Err)
}

func (e *EndpointError) IsRetriable() bool {
	return false
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}

// EncodingError reports a subscribe/unsubscribe frame that could not be
// serialized. It is scoped to the symbols of that frame only.
type EncodingError struct {
	Op      string
	Symbols []string
	Err     error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode %s [%s]: %v", e.Op, strings.Join(e.Symbols, ","), e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// SendError reports a single failed outbound frame.
type SendError struct {
	Op      string
	Symbols []string
	Err     error
}

func (e *SendError) Error() string {
	if len(e.Symbols) == 0 {
		return "send " + e.Op + ": " + e.Err.Error()
	}
	return fmt.Sprintf("send %s [%s]: %v", e.Op, strings.Join(e.Symbols, ","), e.Err)
}

func (e *SendError) IsRetriable() bool {
	return true
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// ReceiveError wraps a read or heartbeat failure that tore the connection
// down. Its message is the user-facing "connection lost" notice.
type ReceiveError struct {
	Err error
}

func (e *ReceiveError) Error() string {
	return ErrConnectionLost.Error() + " (" + e.Err.Error() + ")"
}

func (e *ReceiveError) IsRetriable() bool {
	return true
}

func (e *ReceiveError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrConnectionLost) match any receive failure.
func (e *ReceiveError) Is(target error) bool {
	return target == ErrConnectionLost
}

// ProviderError is an error frame sent by the feed. The connection stays open.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return "provider error: " + e.Message
}

var (
	// ErrConnectionLost is surfaced when an established connection fails.
	ErrConnectionLost = errors.New("Connection lost. Reconnecting...")

	// ErrNotConnected is returned when a send is attempted without a transport.
	ErrNotConnected = errors.New("not connected")

	// ErrInvalidSymbol is returned when a symbol is empty after normalization. Not retriable.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrUnknownDialect is returned when a feed provider name is not supported.
	ErrUnknownDialect = errors.New("unknown feed provider")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
