package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"budgetnest/internal/amqp"
	"budgetnest/internal/log"
)

// RecordEventHandler processes one record event.
type RecordEventHandler func(ctx context.Context, ev *amqp.RecordEvent) error

// EventSource delivers record events until ctx ends.
type EventSource interface {
	ConsumeRecordEvents(ctx context.Context, handler func(context.Context, *amqp.RecordEvent) error) error
}

// MirrorProcessorConfig holds configuration for the mirror processor
type MirrorProcessorConfig struct {
	// MaxRetries is how many times a failing event is attempted before it
	// is handed back to the broker (default: 3)
	MaxRetries int

	// RetryDelay is the wait before the first retry; it doubles after each
	// attempt (default: 500ms)
	RetryDelay time.Duration
}

// DefaultMirrorProcessorConfig returns sensible defaults
func DefaultMirrorProcessorConfig() MirrorProcessorConfig {
	return MirrorProcessorConfig{
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// MirrorProcessor feeds events from a source into a handler with bounded
// retries and owns the consume loop's lifecycle.
type MirrorProcessor struct {
	source  EventSource
	handler RecordEventHandler
	config  MirrorProcessorConfig
	logger  *log.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	lastErr error
}

func NewMirrorProcessor(source EventSource, handler RecordEventHandler, config MirrorProcessorConfig, logger *log.Logger) *MirrorProcessor {
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &MirrorProcessor{
		source:  source,
		handler: handler,
		config:  config,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// Start begins consuming. Returns an error if already running.
func (p *MirrorProcessor) Start(ctx context.Context) error {
	if p.source == nil || p.handler == nil {
		return errors.New("mirror processor needs a source and a handler")
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("mirror processor is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.doneCh = make(chan struct{})
	p.lastErr = nil
	done := p.doneCh
	p.mu.Unlock()

	go p.run(runCtx, done)

	p.logger.InfoContext(ctx, "Mirror processor started",
		"max_retries", p.config.MaxRetries,
		"retry_delay", p.config.RetryDelay)
	return nil
}

func (p *MirrorProcessor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	err := p.source.ConsumeRecordEvents(ctx, p.handle)

	p.mu.Lock()
	p.running = false
	if err != nil && !errors.Is(err, context.Canceled) {
		p.lastErr = err
	}
	p.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("Mirror processor stopped", log.FieldError, err)
	}
}

// handle retries transient failures. The last error goes back to the
// source, which decides whether to requeue.
func (p *MirrorProcessor) handle(ctx context.Context, ev *amqp.RecordEvent) error {
	delay := p.config.RetryDelay
	var err error
	for attempt := 1; attempt <= p.config.MaxRetries; attempt++ {
		if err = p.handler(ctx, ev); err == nil {
			return nil
		}
		if attempt == p.config.MaxRetries {
			break
		}

		p.logger.WarnContext(ctx, "Mirror attempt failed, retrying",
			log.FieldEventID, ev.EventID,
			"attempt", attempt,
			log.FieldError, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	p.logger.ErrorContext(ctx, "Mirror failed after max retries",
		log.FieldEventID, ev.EventID,
		"attempts", p.config.MaxRetries,
		log.FieldError, err)
	return err
}

// Stop cancels consumption and waits for the loop to exit.
func (p *MirrorProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.doneCh
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
		p.logger.InfoContext(ctx, "Mirror processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Mirror processor stop timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the consume loop is active
func (p *MirrorProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Err returns the error that ended the last run, if any.
func (p *MirrorProcessor) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}
