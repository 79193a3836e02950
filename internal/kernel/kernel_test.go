package kernel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemolite/internal/circuitbreaker"
	"mnemolite/internal/config"
	mnemoerrors "mnemolite/internal/errors"
)

func TestDoReturnsTimeoutOnDeadlineExpiry(t *testing.T) {
	k := New(config.TimeoutsConfig{LexicalSearch: 10 * time.Millisecond})

	err := k.Do(context.Background(), OpLexicalSearch, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, mnemoerrors.KindTimeout, mnemoerrors.KindOf(err))
}

func TestDoPropagatesFnError(t *testing.T) {
	k := New(config.TimeoutsConfig{LexicalSearch: time.Second})
	want := errors.New("boom")

	err := k.Do(context.Background(), OpLexicalSearch, func(ctx context.Context) error {
		return want
	})

	assert.Equal(t, want, err)
}

func TestHealthHealthyWithNoOpenBreakers(t *testing.T) {
	k := New(config.TimeoutsConfig{})
	k.Register("embeddings", circuitbreaker.New(circuitbreaker.DefaultConfig()))

	report := k.Health()
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Empty(t, report.CriticalCircuitsOpen)
}

func TestHealthDegradedWithOneOpenBreaker(t *testing.T) {
	k := New(config.TimeoutsConfig{})
	openBreaker := circuitbreaker.New(&circuitbreaker.Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	_ = openBreaker.Execute(context.Background(), func(context.Context) error { return errors.New("fail") })
	k.Register("embeddings", openBreaker)
	k.Register("l2_cache", circuitbreaker.New(circuitbreaker.DefaultConfig()))

	report := k.Health()
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, []string{"embeddings"}, report.CriticalCircuitsOpen)
}

func TestHealthCriticalWhenAllBreakersOpen(t *testing.T) {
	k := New(config.TimeoutsConfig{})
	cfg := &circuitbreaker.Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour}
	cb := circuitbreaker.New(cfg)
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("fail") })
	k.Register("embeddings", cb)

	report := k.Health()
	assert.Equal(t, StatusCritical, report.Status)
}
