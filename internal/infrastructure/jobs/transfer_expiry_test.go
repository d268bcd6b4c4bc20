package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sweeperStub struct {
	swept    int
	err      error
	calls    int
	lastSeen time.Time
}

func (s *sweeperStub) SweepExpired(_ context.Context) (int, error) {
	s.calls++
	s.lastSeen = time.Now()
	return s.swept, s.err
}

func TestSweepInvokesSweeper(t *testing.T) {
	sweeper := &sweeperStub{swept: 2}
	job := NewTransferExpiryJob(sweeper, time.Millisecond)

	job.sweep(context.Background())
	require.Equal(t, 1, sweeper.calls)
}

func TestSweepSwallowsErrors(t *testing.T) {
	sweeper := &sweeperStub{err: errors.New("db down")}
	job := NewTransferExpiryJob(sweeper, time.Millisecond)

	job.sweep(context.Background())
	require.Equal(t, 1, sweeper.calls)
}

func TestStartStopsOnStop(t *testing.T) {
	sweeper := &sweeperStub{}
	job := NewTransferExpiryJob(sweeper, time.Millisecond)

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	job.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not stop")
	}
	require.Greater(t, sweeper.calls, 0)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	sweeper := &sweeperStub{}
	job := NewTransferExpiryJob(sweeper, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not stop")
	}
}
