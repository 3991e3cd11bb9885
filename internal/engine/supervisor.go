package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pricestream/internal/codec"
	"pricestream/internal/domain"
	"pricestream/internal/service"
	"pricestream/internal/subscription"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultReadyDelay     = 1 * time.Second
	DefaultReconnectDelay = 5 * time.Second
	DefaultPingInterval   = 20 * time.Second
	DefaultMaxBackoff     = 60 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	defaultInboxSize      = 256
	defaultOutboxSize     = 256
)

var errOutboxFull = errors.New("outbox full")

var _ domain.FeedClient = (*Supervisor)(nil)

// Config tunes one supervisor.
type Config struct {
	Feed  string // Label used in logs and metrics
	URL   string // Base URL, empty means the dialect default
	Token string

	ReadyDelay     time.Duration
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	MaxBackoff     time.Duration
	WriteTimeout   time.Duration

	// Greeting is sent as a text frame once the connection is ready (chat feeds).
	Greeting  string
	InboxSize int
}

func (c Config) withDefaults() Config {
	if c.ReadyDelay <= 0 {
		c.ReadyDelay = DefaultReadyDelay
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.MaxBackoff < c.ReconnectDelay {
		c.MaxBackoff = max(DefaultMaxBackoff, c.ReconnectDelay)
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	return c
}

// Metrics receives supervisor counters. *infra.Metrics implements it.
type Metrics interface {
	FrameReceived(feed string)
	FrameDropped(feed string)
	TradesDecoded(feed string, n int)
	ProviderError(feed string)
	SendFailed(feed, op string)
	PingSent(feed string)
	ReconnectScheduled(feed string)
	SetState(feed string, state domain.ConnectionState)
}

type noopMetrics struct{}

func (noopMetrics) FrameReceived(string)                    {}
func (noopMetrics) FrameDropped(string)                     {}
func (noopMetrics) TradesDecoded(string, int)               {}
func (noopMetrics) ProviderError(string)                    {}
func (noopMetrics) SendFailed(string, string)               {}
func (noopMetrics) PingSent(string)                         {}
func (noopMetrics) ReconnectScheduled(string)               {}
func (noopMetrics) SetState(string, domain.ConnectionState) {}

// Options wires collaborators. Zero values fall back to real implementations.
type Options struct {
	Dialer   Dialer
	Clock    Clock
	Logger   *slog.Logger
	Metrics  Metrics
	Registry *subscription.Registry
	Store    *service.PriceStore
	OnUpdate func(domain.Update)
}

// Supervisor owns one feed connection. All state changes happen on the
// goroutine started by Start; public methods only enqueue work.
//
// OnUpdate runs on that goroutine and must not block.
type Supervisor struct {
	cfg      Config
	dialect  codec.Dialect
	dialer   Dialer
	clock    Clock
	logger   *slog.Logger
	metrics  Metrics
	registry *subscription.Registry
	store    *service.PriceStore
	onUpdate func(domain.Update)

	inbox   chan event
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once

	// Owned by the actor goroutine.
	state          domain.ConnectionState
	lastErr        error
	reconnecting   bool
	epoch          uint64
	conn           *connection
	dialCancel     context.CancelFunc
	readyTimer     Timer
	pingTimer      Timer
	reconnectTimer Timer
	backoff        *backoff.ExponentialBackOff

	// Mirror for external reads.
	mu         sync.RWMutex
	pubState   domain.ConnectionState
	pubErr     error
	pubPending bool
}

// NewSupervisor creates a supervisor for dialect. Call Start to run it.
func NewSupervisor(cfg Config, dialect codec.Dialect, opts Options) *Supervisor {
	cfg = cfg.withDefaults()
	if cfg.Feed == "" {
		cfg.Feed = dialect.Name()
	}

	s := &Supervisor{
		cfg:      cfg,
		dialect:  dialect,
		dialer:   opts.Dialer,
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		registry: opts.Registry,
		store:    opts.Store,
		onUpdate: opts.OnUpdate,
		inbox:    make(chan event, cfg.InboxSize),
		stopped:  make(chan struct{}),
	}
	if s.dialer == nil {
		s.dialer = NewWebsocketDialer(10*time.Second, "")
	}
	if s.clock == nil {
		s.clock = RealClock
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("feed", cfg.Feed))
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.registry == nil {
		s.registry = subscription.NewRegistry()
	}
	if s.store == nil {
		s.store = service.NewPriceStore(dialect.TrackPrevious())
	}

	s.backoff = backoff.NewExponentialBackOff()
	s.backoff.InitialInterval = cfg.ReconnectDelay
	s.backoff.MaxInterval = cfg.MaxBackoff
	s.backoff.RandomizationFactor = 0
	s.backoff.Reset()

	return s
}

// Start launches the actor goroutine. Cancelling ctx has the same effect as Close.
func (s *Supervisor) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(ctx)
		s.wg.Add(1)
		go s.run()
	})
}

// Close disconnects and waits for every goroutine the supervisor started.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		s.startOnce.Do(func() { close(s.stopped) })
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// Connect starts a fresh connection attempt, tearing down any current one.
func (s *Supervisor) Connect() { s.post(cmdConnect{}) }

// Subscribe requests streaming for symbols. Empty input is ignored.
func (s *Supervisor) Subscribe(symbols ...string) {
	if cleaned := domain.CleanSymbols(symbols); len(cleaned) > 0 {
		s.post(cmdSubscribe{symbols: cleaned})
	}
}

// Unsubscribe stops streaming symbols and forgets them.
func (s *Supervisor) Unsubscribe(symbols ...string) {
	if cleaned := domain.CleanSymbols(symbols); len(cleaned) > 0 {
		s.post(cmdUnsubscribe{symbols: cleaned})
	}
}

// Disconnect closes the connection and cancels pending timers. Subscriptions
// are kept for the next Connect.
func (s *Supervisor) Disconnect() { s.post(cmdDisconnect{}) }

// SendText sends a text frame on the current connection (chat feeds).
func (s *Supervisor) SendText(text string) { s.post(cmdSendText{text: text}) }

func (s *Supervisor) State() domain.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pubState
}

func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pubErr
}

// Reconnecting reports whether a reconnect attempt is scheduled
func (s *Supervisor) Reconnecting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pubPending
}

func (s *Supervisor) Prices() domain.PriceSnapshot {
	return s.store.Snapshot()
}

// Subscriptions returns the pending and active partitions
func (s *Supervisor) Subscriptions() (pending, active []string) {
	return s.registry.Pending(), s.registry.Active()
}

// post delivers ev to the actor. It returns false once the actor has stopped.
func (s *Supervisor) post(ev event) bool {
	select {
	case <-s.stopped:
		return false
	default:
	}
	select {
	case s.inbox <- ev:
		return true
	case <-s.stopped:
		return false
	}
}

func (s *Supervisor) run() {
	defer s.wg.Done()
	defer close(s.stopped)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Supervisor panic recovered", slog.Any("panic", r))
			s.teardown(false)
			panic(fmt.Sprintf("supervisor halted: %v", r))
		}
	}()

	s.logger.Info("Supervisor started")
	for {
		select {
		case <-s.ctx.Done():
			s.handleDisconnect()
			s.logger.Info("Supervisor stopped")
			return
		case ev := <-s.inbox:
			s.handle(ev)
		}
	}
}

func (s *Supervisor) handle(ev event) {
	switch e := ev.(type) {
	case cmdConnect:
		s.connect()
	case cmdSubscribe:
		s.handleSubscribe(e.symbols)
	case cmdUnsubscribe:
		s.handleUnsubscribe(e.symbols)
	case cmdDisconnect:
		s.handleDisconnect()
	case cmdSendText:
		s.handleSendText(e.text)
	case evDialed:
		s.handleDialed(e)
	case evReadyTimer:
		if e.epoch == s.epoch {
			s.handleReady()
		}
	case evPingTimer:
		if e.epoch == s.epoch {
			s.handlePing()
		}
	case evReconnectTimer:
		if e.epoch == s.epoch {
			s.logger.Info("Attempting to reconnect")
			s.connect()
		}
	case evFrame:
		if e.epoch == s.epoch {
			s.handleFrame(e)
		}
	case evReadFailed:
		if e.epoch == s.epoch {
			s.logger.Warn("WebSocket receive error", slog.String("conn_id", e.connID), slog.Any("error", e.err))
			s.connectionLost(e.err)
		}
	case evSendFailed:
		if e.epoch == s.epoch {
			s.handleSendFailed(e)
		}
	default:
		s.logger.Warn("Unknown supervisor event", slog.String("type", fmt.Sprintf("%T", ev)))
	}
}

// connect tears down whatever exists and dials a new transport.
func (s *Supervisor) connect() {
	s.teardown(true)
	s.reconnecting = false

	url, err := s.dialect.Endpoint(s.cfg.URL, s.cfg.Token)
	if err != nil {
		s.logger.Error("Invalid WebSocket URL", slog.Any("error", err))
		s.lastErr = err
		s.setState(domain.StateDisconnected)
		return
	}

	epoch := s.epoch
	connID := uuid.NewString()
	ctx, cancel := context.WithCancel(s.ctx)
	s.dialCancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		conn, err := s.dialer.Dial(ctx, url)
		if !s.post(evDialed{epoch: epoch, connID: connID, conn: conn, err: err}) && conn != nil {
			conn.Close()
		}
	}()

	s.logger.Info("Connecting to WebSocket", slog.String("conn_id", connID))
	s.setState(domain.StateConnecting)
}

func (s *Supervisor) handleDialed(e evDialed) {
	if e.epoch != s.epoch {
		if e.conn != nil {
			e.conn.Close()
		}
		return
	}
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}

	if e.err != nil {
		err := e.err
		var re domain.RetriableError
		if !errors.As(err, &re) {
			err = domain.NewNetworkError("dial", err)
		}
		s.lastErr = err

		if !domain.IsRetriable(err) {
			s.logger.Error("WebSocket connection rejected", slog.String("conn_id", e.connID), slog.Any("error", err))
			s.backoff.Reset()
			s.setState(domain.StateDisconnected)
			return
		}

		delay := s.backoff.NextBackOff()
		s.logger.Warn("WebSocket connection failed",
			slog.String("conn_id", e.connID),
			slog.Any("error", err),
			slog.Duration("retry_in", delay),
		)
		s.scheduleReconnect(delay)
		s.setState(domain.StateDisconnected)
		return
	}

	s.backoff.Reset()
	s.conn = s.startConnection(e.connID, e.conn)
	epoch := s.epoch
	s.readyTimer = s.clock.AfterFunc(s.cfg.ReadyDelay, func() {
		s.post(evReadyTimer{epoch: epoch})
	})

	s.logger.Info("WebSocket connected", slog.String("conn_id", e.connID))
	s.setState(domain.StateConnectedNotReady)
}

func (s *Supervisor) handleReady() {
	if s.state != domain.StateConnectedNotReady || s.conn == nil {
		return
	}
	s.readyTimer = nil
	s.schedulePing()

	if s.cfg.Greeting != "" {
		s.send("chat", websocket.TextMessage, []byte(s.cfg.Greeting), nil)
	}

	flushed := s.registry.FlushToActive()
	s.sendFrames(s.dialect.EncodeSubscribe(flushed))

	s.logger.Info("WebSocket ready",
		slog.String("conn_id", s.conn.id),
		slog.Int("subscriptions", len(flushed)),
	)
	s.setState(domain.StateReady)
}

func (s *Supervisor) schedulePing() {
	epoch := s.epoch
	s.pingTimer = s.clock.AfterFunc(s.cfg.PingInterval, func() {
		s.post(evPingTimer{epoch: epoch})
	})
}

func (s *Supervisor) handlePing() {
	if s.state != domain.StateReady || s.conn == nil {
		return
	}
	s.send("ping", websocket.PingMessage, nil, nil)
	s.schedulePing()
}

func (s *Supervisor) handleSubscribe(symbols []string) {
	if s.state == domain.StateReady && s.conn != nil {
		added := s.registry.MarkActive(symbols)
		s.sendFrames(s.dialect.EncodeSubscribe(added))
		return
	}

	queued := s.registry.EnqueuePending(symbols)
	s.logger.Debug("Subscription queued", slog.Any("symbols", queued), slog.String("state", s.state.String()))
	if s.state == domain.StateDisconnected {
		s.connect()
	}
}

func (s *Supervisor) handleUnsubscribe(symbols []string) {
	if s.conn != nil {
		s.sendFrames(s.dialect.EncodeUnsubscribe(symbols))
	}
	s.registry.Remove(symbols)
}

func (s *Supervisor) handleDisconnect() {
	hadWork := s.conn != nil || s.dialCancel != nil || s.reconnectTimer != nil
	s.teardown(true)
	wasPending := s.reconnecting
	s.reconnecting = false

	if hadWork || wasPending || s.state != domain.StateDisconnected {
		s.logger.Info("WebSocket disconnected")
		s.setState(domain.StateDisconnected)
	}
}

func (s *Supervisor) handleSendText(text string) {
	if s.conn == nil {
		s.logger.Warn("Dropping chat message", slog.Any("error", domain.ErrNotConnected))
		return
	}
	s.send("chat", websocket.TextMessage, []byte(text), nil)
}

func (s *Supervisor) handleFrame(e evFrame) {
	s.metrics.FrameReceived(s.cfg.Feed)
	msg := s.dialect.Decode(e.messageType, e.data)

	switch msg.Kind {
	case domain.MessageTrade:
		if s.store.Merge(msg.Trades, s.clock.Now()) {
			s.metrics.TradesDecoded(s.cfg.Feed, len(msg.Trades))
			s.publish(nil)
		}
	case domain.MessageError:
		s.metrics.ProviderError(s.cfg.Feed)
		s.logger.Warn("Provider error", slog.String("msg", msg.Text))
		s.lastErr = &domain.ProviderError{Message: msg.Text}
		s.publish(&msg)
	case domain.MessageChat:
		s.publish(&msg)
	case domain.MessageConfirmation:
		s.logger.Debug("Subscription confirmed", slog.String("symbol", msg.Symbol))
	case domain.MessagePing, domain.MessageWelcome:
		s.logger.Debug("Control frame", slog.String("kind", msg.Kind.String()))
	default:
		s.metrics.FrameDropped(s.cfg.Feed)
	}
}

func (s *Supervisor) handleSendFailed(e evSendFailed) {
	s.metrics.SendFailed(s.cfg.Feed, e.op)
	if e.op == "ping" {
		s.logger.Warn("Ping failed", slog.Any("error", e.err))
		s.connectionLost(e.err)
		return
	}

	sendErr := &domain.SendError{Op: e.op, Symbols: e.symbols, Err: e.err}
	s.logger.Warn("Send failed", slog.Any("error", sendErr))
	s.lastErr = sendErr
	s.publish(nil)
}

// connectionLost handles a receive or heartbeat failure on an open transport.
func (s *Supervisor) connectionLost(err error) {
	if !s.state.IsConnected() {
		return
	}
	s.teardown(false)
	s.lastErr = &domain.ReceiveError{Err: err}
	s.scheduleReconnect(s.cfg.ReconnectDelay)
	s.setState(domain.StateDisconnected)
}

func (s *Supervisor) scheduleReconnect(delay time.Duration) {
	epoch := s.epoch
	s.reconnecting = true
	s.reconnectTimer = s.clock.AfterFunc(delay, func() {
		s.post(evReconnectTimer{epoch: epoch})
	})
	s.metrics.ReconnectScheduled(s.cfg.Feed)
	s.logger.Info("Reconnect scheduled", slog.Duration("delay", delay))
}

// teardown cancels timers and any dial, closes the transport and moves
// active subscriptions back to pending. Every event from before the call is
// ignored afterwards.
func (s *Supervisor) teardown(graceful bool) {
	s.epoch++

	for _, t := range []*Timer{&s.readyTimer, &s.pingTimer, &s.reconnectTimer} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}
	if s.conn != nil {
		if graceful {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := s.conn.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				s.logger.Debug("Close frame not sent", slog.Any("error", err))
			}
		}
		s.conn.close()
		s.conn = nil
		if requeued := s.registry.RequeueActive(); len(requeued) > 0 {
			s.logger.Debug("Subscriptions requeued", slog.Any("symbols", requeued))
		}
	}
}

func (s *Supervisor) sendFrames(frames []codec.Frame) {
	for _, f := range frames {
		if f.Err != nil {
			s.logger.Error("Error creating message", slog.Any("error", f.Err))
			s.lastErr = f.Err
			s.publish(nil)
			continue
		}
		s.send(f.Op, websocket.TextMessage, f.Data, f.Symbols)
	}
}

// send queues one frame on the writer. It never blocks.
func (s *Supervisor) send(op string, messageType int, data []byte, symbols []string) {
	if s.conn == nil {
		s.handleSendFailed(evSendFailed{epoch: s.epoch, op: op, symbols: symbols, err: domain.ErrNotConnected})
		return
	}
	select {
	case s.conn.outbox <- outbound{op: op, messageType: messageType, data: data, symbols: symbols}:
	default:
		s.handleSendFailed(evSendFailed{epoch: s.epoch, op: op, symbols: symbols, err: errOutboxFull})
	}
}

func (s *Supervisor) setState(state domain.ConnectionState) {
	s.state = state
	phase := state
	if state == domain.StateDisconnected && s.reconnecting {
		phase = domain.StateReconnecting
	}
	s.metrics.SetState(s.cfg.Feed, phase)
	s.publish(nil)
}

// publish mirrors actor state for getters and notifies the observer.
func (s *Supervisor) publish(msg *domain.InboundMessage) {
	s.mu.Lock()
	s.pubState = s.state
	s.pubErr = s.lastErr
	s.pubPending = s.reconnecting
	s.mu.Unlock()

	if s.onUpdate == nil {
		return
	}
	s.onUpdate(domain.Update{
		State:        s.state,
		Prices:       s.store.Snapshot(),
		Err:          s.lastErr,
		Reconnecting: s.reconnecting,
		Message:      msg,
	})
}
