package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"servicelines-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
)

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 2, p.err
}

func TestStoreJanitorRunsUntilCancelled(t *testing.T) {
	purger := &countingPurger{}
	j := NewStoreJanitor(purger, 5*time.Millisecond, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return purger.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestStoreJanitorSurvivesErrors(t *testing.T) {
	purger := &countingPurger{err: errors.New("db down")}
	j := NewStoreJanitor(purger, time.Hour, logger.NewNopLogger())
	assert.NotPanics(t, func() { j.PurgeOnce(context.Background()) })
	assert.Equal(t, int32(1), purger.calls.Load())
}
