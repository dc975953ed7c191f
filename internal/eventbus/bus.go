package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/grachmannico95/residue-market-be/pkg/retry"
)

type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, consumer Consumer) error
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Dropped() int64
}

type eventBus struct {
	channels       map[EventType]chan Event
	consumers      map[EventType][]Consumer
	mu             sync.RWMutex
	wg             sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
	logger         *logger.Logger
	channelBuffer  int
	maxRetries     int
	retryBaseDelay time.Duration
	dropped        atomic.Int64
	started        bool
}

type Config struct {
	ChannelBuffer  int
	MaxRetries     int
	RetryBaseDelay time.Duration
}

func New(log *logger.Logger, cfg *Config) EventBus {
	if cfg == nil {
		cfg = &Config{
			ChannelBuffer: 1000,
			MaxRetries:    5,
		}
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}

	return &eventBus{
		channels:       make(map[EventType]chan Event),
		consumers:      make(map[EventType][]Consumer),
		logger:         log,
		channelBuffer:  cfg.ChannelBuffer,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
	}
}

func (eb *eventBus) Subscribe(eventType EventType, consumer Consumer) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, exists := eb.channels[eventType]; !exists {
		eb.channels[eventType] = make(chan Event, eb.channelBuffer)
	}

	eb.consumers[eventType] = append(eb.consumers[eventType], consumer)

	return nil
}

func (eb *eventBus) Start(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.started {
		return nil
	}

	eb.ctx, eb.cancel = context.WithCancel(ctx)

	for eventType, consumers := range eb.consumers {
		ch := eb.channels[eventType]

		for _, consumer := range consumers {
			workerCount := consumer.GetWorkerCount()
			eb.logger.Info(eb.ctx, "Starting workers",
				"event_type", eventType,
				"worker_count", workerCount,
			)

			for i := 0; i < workerCount; i++ {
				eb.wg.Add(1)
				go eb.worker(eb.ctx, ch, consumer, i)
			}
		}
	}

	eb.started = true
	eb.logger.Info(eb.ctx, "Event bus started")

	return nil
}

func (eb *eventBus) worker(ctx context.Context, ch <-chan Event, consumer Consumer, workerID int) {
	defer eb.wg.Done()

	for {
		select {
		case <-ctx.Done():
			eb.drain(ch, consumer, workerID)
			return
		case event, ok := <-ch:
			if !ok {
				return
			}

			eb.processEvent(ctx, event, consumer, workerID)
		}
	}
}

// drain handles events still buffered at shutdown so committed purchases do
// not lose their notifications.
func (eb *eventBus) drain(ch <-chan Event, consumer Consumer, workerID int) {
	for {
		select {
		case event := <-ch:
			eb.processEvent(context.Background(), event, consumer, workerID)
		default:
			return
		}
	}
}

func (eb *eventBus) processEvent(ctx context.Context, event Event, consumer Consumer, workerID int) {
	eventCtx := ctx
	if event.ID != "" {
		eventCtx = logger.WithTraceID(ctx, event.ID)
	}

	err := retry.Do(eventCtx, func() error {
		return consumer.Consume(eventCtx, event)
	},
		retry.WithMaxAttempts(eb.maxRetries),
		retry.WithBaseDelay(eb.retryBaseDelay),
	)

	if err != nil {
		eb.logger.Error(eventCtx, "Failed to process event after retries",
			"event_id", event.ID,
			"event_type", event.Type,
			"worker_id", workerID,
			"error", err,
		)
		return
	}

	eb.logger.Debug(eventCtx, "Event processed",
		"event_id", event.ID,
		"event_type", event.Type,
		"worker_id", workerID,
	)
}

// Publish never blocks the caller. Events for a full channel are dropped and counted.
func (eb *eventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	ch, exists := eb.channels[event.Type]
	eb.mu.RUnlock()

	if !exists {
		eb.logger.Warn(ctx, "No channel for event type",
			"event_type", event.Type,
			"event_id", event.ID,
		)
		return nil
	}

	select {
	case ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		eb.dropped.Add(1)
		eb.logger.Warn(ctx, "Event channel full, event dropped",
			"event_type", event.Type,
			"event_id", event.ID,
		)
		return nil
	}
}

func (eb *eventBus) Dropped() int64 {
	return eb.dropped.Load()
}

func (eb *eventBus) Shutdown(ctx context.Context) error {
	eb.logger.Info(ctx, "Shutting down event bus")

	if eb.cancel != nil {
		eb.cancel()
	}

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		eb.logger.Info(ctx, "Event bus shutdown complete")
		return nil
	case <-ctx.Done():
		eb.logger.Warn(ctx, "Event bus shutdown timeout")
		return ctx.Err()
	}
}
