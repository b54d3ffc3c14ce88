package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/sales-playbook/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	startErr error
	started  bool
	stopped  bool
}

func (f *fakeScheduler) Start(context.Context) error {
	f.started = true
	return f.startErr
}

func (f *fakeScheduler) Stop() {
	f.stopped = true
}

type fakeHTTP struct {
	listenErr    error
	listenCalled chan struct{}
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func newFakeHTTP() *fakeHTTP {
	return &fakeHTTP{
		listenCalled: make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

func (f *fakeHTTP) ListenAndServe(string) error {
	close(f.listenCalled)
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.shutdownCh
	return http.ErrServerClosed
}

func (f *fakeHTTP) Shutdown(context.Context) error {
	f.shutdownOnce.Do(func() { close(f.shutdownCh) })
	return nil
}

type fakeDrainer struct {
	drained bool
}

func (f *fakeDrainer) Shutdown(context.Context) error {
	f.drained = true
	return nil
}

func testConfig() *config.Config {
	return &config.Config{HTTP: config.HTTPConfig{Addr: "127.0.0.1:0"}}
}

func TestMain_StartsMaintenanceAndHTTP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := &fakeScheduler{}
	httpSrv := newFakeHTTP()
	batches := &fakeDrainer{}

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- runWithComponents(ctx, testConfig(), sched, httpSrv, batches)
	}()

	select {
	case <-httpSrv.listenCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("http server did not start")
	}

	cancel()

	select {
	case err := <-doneCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runWithComponents did not exit after cancellation")
	}

	assert.True(t, sched.started)
	assert.True(t, sched.stopped)
	assert.True(t, batches.drained)
}

func TestMain_ReturnsListenError(t *testing.T) {
	httpSrv := newFakeHTTP()
	httpSrv.listenErr = errors.New("address in use")
	sched := &fakeScheduler{}

	err := runWithComponents(context.Background(), testConfig(), sched, httpSrv, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
	assert.True(t, sched.stopped)
}

func TestMain_SchedulerFailureStopsEarly(t *testing.T) {
	httpSrv := newFakeHTTP()
	sched := &fakeScheduler{startErr: errors.New("bad cron")}

	err := runWithComponents(context.Background(), testConfig(), sched, httpSrv, nil)
	require.Error(t, err)

	select {
	case <-httpSrv.listenCalled:
		t.Fatal("http server should not start")
	default:
	}
}
