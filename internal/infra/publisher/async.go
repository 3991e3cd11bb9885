package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pricestream/internal/domain"
)

// DefaultQueueSize bounds the number of snapshots waiting for the sink
const DefaultQueueSize = 256

// FailureRecorder counts failed publishes per sink
type FailureRecorder interface {
	PublishFailed(sink string)
}

type job struct {
	feed string
	snap domain.PriceSnapshot
}

// Async decouples a slow sink from the supervisor. Offer never blocks;
// snapshots are dropped when the queue is full.
type Async struct {
	sink     domain.PricePublisher
	name     string
	queue    chan job
	recorder FailureRecorder
	logger   *slog.Logger
	timeout  time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewAsync wraps sink. name labels failure metrics (e.g. "redis").
func NewAsync(sink domain.PricePublisher, name string, queueSize int, recorder FailureRecorder, logger *slog.Logger) *Async {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{
		sink:     sink,
		name:     name,
		queue:    make(chan job, queueSize),
		recorder: recorder,
		logger:   logger.With("sink", name),
		timeout:  2 * time.Second,
	}
}

// Start launches the worker. Stop drains nothing; pending snapshots are lost.
func (a *Async) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.run(ctx)
}

// Stop cancels the worker and waits for it to exit
func (a *Async) Stop() {
	a.stopOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()
	})
}

// Offer queues snap for publishing. Returns false if it was dropped.
func (a *Async) Offer(feed string, snap domain.PriceSnapshot) bool {
	select {
	case a.queue <- job{feed: feed, snap: snap}:
		return true
	default:
		a.fail()
		a.logger.Warn("Publish queue full, dropping snapshot", "feed", feed, "version", snap.Version)
		return false
	}
}

func (a *Async) run(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-a.queue:
			pubCtx, cancel := context.WithTimeout(ctx, a.timeout)
			err := a.sink.Publish(pubCtx, j.feed, j.snap)
			cancel()
			if err != nil {
				a.fail()
				a.logger.Error("Publish failed", "feed", j.feed, "error", err)
			}
		}
	}
}

func (a *Async) fail() {
	if a.recorder != nil {
		a.recorder.PublishFailed(a.name)
	}
}
