package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/nickborrello/baystate-coordinator/internal/config"
	"github.com/nickborrello/baystate-coordinator/internal/dispatch/workflow"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTrigger fails the first failN calls and records every params it sees.
type fakeTrigger struct {
	mu     sync.Mutex
	failN  int
	calls  int
	params []workflow.RunParams
}

func (f *fakeTrigger) TriggerRun(_ context.Context, params workflow.RunParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.params = append(f.params, params)
	if f.calls <= f.failN {
		return errors.New("trigger unavailable")
	}
	return nil
}

func (f *fakeTrigger) Ready(_ context.Context) error { return nil }

func testJob(skus int, maxRunners int) *models.Job {
	j := &models.Job{ID: uuid.New(), MaxRunners: maxRunners, Sources: []string{"acme"}}
	for i := 0; i < skus; i++ {
		j.SKUs = append(j.SKUs, "SKU")
	}
	return j
}

func TestWorkerCount(t *testing.T) {
	assert.Equal(t, 1, workerCount(testJob(10, 5), 0, 3), "unchunked jobs get one worker")
	assert.Equal(t, 2, workerCount(testJob(100, 5), 2, 3), "never more workers than chunks")
	assert.Equal(t, 3, workerCount(testJob(500, 3), 10, 5), "job hint caps fan-out")
	assert.Equal(t, 5, workerCount(testJob(500, 0), 10, 5), "default applies without a hint")
	assert.Equal(t, 1, workerCount(testJob(500, 0), 10, 0), "fan-out is never zero")
}

func TestPushDispatch_ChunkedFanOut(t *testing.T) {
	trigger := &fakeTrigger{}
	d := NewPushDispatcher(trigger, 3)

	outcome, err := d.Dispatch(context.Background(), testJob(150, 3), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Requested)
	assert.Equal(t, 3, outcome.Succeeded)
	assert.Empty(t, outcome.Errors)

	require.Len(t, trigger.params, 3)
	for _, p := range trigger.params {
		assert.Equal(t, RunModeChunkWorker, p.Mode)
		assert.Empty(t, p.SKUs, "chunk workers claim their own work")
		assert.Equal(t, 3, p.Concurrency)
	}
}

func TestPushDispatch_UnchunkedCarriesSKUs(t *testing.T) {
	trigger := &fakeTrigger{}
	d := NewPushDispatcher(trigger, 3)
	job := testJob(10, 3)

	outcome, err := d.Dispatch(context.Background(), job, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Requested)

	require.Len(t, trigger.params, 1)
	assert.Equal(t, RunModeFull, trigger.params[0].Mode)
	assert.Equal(t, job.SKUs, trigger.params[0].SKUs)
	assert.Equal(t, job.Sources, trigger.params[0].Sources)
}

func TestPushDispatch_PartialFailureIsSuccess(t *testing.T) {
	trigger := &fakeTrigger{failN: 1}
	d := NewPushDispatcher(trigger, 3)

	outcome, err := d.Dispatch(context.Background(), testJob(150, 3), 3)
	require.NoError(t, err, "one worker reaching the fleet is enough")
	assert.Equal(t, 2, outcome.Succeeded)
	assert.Len(t, outcome.Errors, 1)
}

func TestPushDispatch_TotalFailure(t *testing.T) {
	trigger := &fakeTrigger{failN: 3}
	d := NewPushDispatcher(trigger, 3)

	outcome, err := d.Dispatch(context.Background(), testJob(150, 3), 3)
	assert.ErrorIs(t, err, ErrNoDispatches)
	assert.Equal(t, 0, outcome.Succeeded)
	assert.Len(t, outcome.Errors, 3)
}

func TestPullDispatch_NoTriggerCalls(t *testing.T) {
	d := NewPullDispatcher(3)

	outcome, err := d.Dispatch(context.Background(), testJob(150, 3), 3)
	require.NoError(t, err)
	assert.Equal(t, config.DispatchModePull, outcome.Mode)
	assert.Equal(t, 3, outcome.Requested)
	assert.Equal(t, 0, outcome.Succeeded, "pull mode never confirms workers")
}

func TestNew_SelectsStrategy(t *testing.T) {
	pull, err := New(config.DispatchConfig{Mode: config.DispatchModePull, MaxRunners: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, config.DispatchModePull, pull.Mode())

	push, err := New(config.DispatchConfig{Mode: config.DispatchModePush, MaxRunners: 3}, &fakeTrigger{})
	require.NoError(t, err)
	assert.Equal(t, config.DispatchModePush, push.Mode())

	_, err = New(config.DispatchConfig{Mode: "broadcast"}, nil)
	assert.Error(t, err)
}
