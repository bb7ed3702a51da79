package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetnest/internal/amqp"
	"budgetnest/internal/log"
)

// chanSource delivers events pushed on a channel and records handler results.
type chanSource struct {
	events  chan *amqp.RecordEvent
	results chan error
}

func newChanSource() *chanSource {
	return &chanSource{events: make(chan *amqp.RecordEvent), results: make(chan error, 8)}
}

func (s *chanSource) ConsumeRecordEvents(ctx context.Context, handler func(context.Context, *amqp.RecordEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			s.results <- handler(ctx, ev)
		}
	}
}

type failingSource struct{ err error }

func (s failingSource) ConsumeRecordEvents(context.Context, func(context.Context, *amqp.RecordEvent) error) error {
	return s.err
}

func testConfig() MirrorProcessorConfig {
	return MirrorProcessorConfig{MaxRetries: 3, RetryDelay: time.Millisecond}
}

func TestDefaultMirrorProcessorConfig(t *testing.T) {
	config := DefaultMirrorProcessorConfig()

	if config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", config.MaxRetries)
	}
	if config.RetryDelay != 500*time.Millisecond {
		t.Errorf("expected RetryDelay 500ms, got %v", config.RetryDelay)
	}
}

func TestMirrorProcessor_RetriesThenSucceeds(t *testing.T) {
	src := newChanSource()
	var calls atomic.Int32
	handler := func(context.Context, *amqp.RecordEvent) error {
		if calls.Add(1) < 3 {
			return errors.New("sheets 503")
		}
		return nil
	}
	p := NewMirrorProcessor(src, handler, testConfig(), log.Discard())

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())

	src.events <- amqp.NewRecordEvent(amqp.KindIncome, amqp.ActionCreated, "u1", "r1")
	assert.NoError(t, <-src.results)
	assert.Equal(t, int32(3), calls.Load())

	require.NoError(t, p.Stop(context.Background()))
	assert.False(t, p.IsRunning())
	assert.NoError(t, p.Err())
}

func TestMirrorProcessor_GivesUpAfterMaxRetries(t *testing.T) {
	src := newChanSource()
	var calls atomic.Int32
	handler := func(context.Context, *amqp.RecordEvent) error {
		calls.Add(1)
		return errors.New("permission denied")
	}
	p := NewMirrorProcessor(src, handler, testConfig(), log.Discard())
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	src.events <- amqp.NewRecordEvent(amqp.KindIncome, amqp.ActionCreated, "u1", "r1")
	assert.ErrorContains(t, <-src.results, "permission denied")
	assert.Equal(t, int32(3), calls.Load())
}

func TestMirrorProcessor_StartTwice(t *testing.T) {
	p := NewMirrorProcessor(newChanSource(), func(context.Context, *amqp.RecordEvent) error { return nil }, testConfig(), log.Discard())
	ctx := context.Background()

	require.NoError(t, p.Start(ctx))
	defer p.Stop(ctx)

	if err := p.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}
}

func TestMirrorProcessor_StopNotRunning(t *testing.T) {
	p := NewMirrorProcessor(newChanSource(), nil, testConfig(), log.Discard())

	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("expected nil error when stopping non-running processor, got %v", err)
	}
	assert.Error(t, p.Start(context.Background()), "missing handler should be rejected")
}

func TestMirrorProcessor_SourceFailureIsRecorded(t *testing.T) {
	p := NewMirrorProcessor(failingSource{err: errors.New("dial AMQP: refused")}, func(context.Context, *amqp.RecordEvent) error { return nil }, testConfig(), log.Discard())

	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return !p.IsRunning() }, time.Second, 5*time.Millisecond)
	assert.ErrorContains(t, p.Err(), "refused")
	assert.NoError(t, p.Stop(context.Background()))
}

func TestMirrorProcessor_StopTimesOut(t *testing.T) {
	src := newChanSource()
	block := make(chan struct{})
	handler := func(context.Context, *amqp.RecordEvent) error {
		<-block
		return nil
	}
	p := NewMirrorProcessor(src, handler, testConfig(), log.Discard())
	require.NoError(t, p.Start(context.Background()))

	src.events <- amqp.NewRecordEvent(amqp.KindIncome, amqp.ActionCreated, "u1", "r1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Stop(ctx), context.DeadlineExceeded)

	close(block)
	<-src.results
	require.NoError(t, p.Stop(context.Background()))
}
