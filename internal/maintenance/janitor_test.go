package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/sales-playbook/internal/jobs"
	"github.com/MimeLyc/sales-playbook/internal/progress"
)

type harness struct {
	store   *jobs.MemoryStore
	tracker *jobs.Tracker
	bus     *progress.Bus
	janitor *Janitor
	tempDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := jobs.NewMemoryStore()
	tracker := jobs.NewTracker(store)
	bus := progress.NewBus(8)
	dir := t.TempDir()
	return &harness{
		store:   store,
		tracker: tracker,
		bus:     bus,
		tempDir: dir,
		janitor: New(tracker, store, bus, Options{
			StaleJobAfter:  30 * time.Minute,
			TempDir:        dir,
			TempFileMaxAge: time.Hour,
		}),
	}
}

func (h *harness) createJob(t *testing.T, id string, at time.Time) {
	t.Helper()
	job := jobs.New(id, []jobs.FileInfo{{Filename: "a.txt"}, {Filename: "b.txt"}}, at)
	_, err := h.tracker.Create(context.Background(), job)
	require.NoError(t, err)
}

func TestRunOnce_ReapsStaleJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := time.Now().Add(-2 * time.Hour)

	h.createJob(t, "stale", old)
	h.createJob(t, "fresh", time.Now())
	h.createJob(t, "live", old)
	require.NoError(t, h.tracker.Acquire(ctx, "live"))
	defer h.tracker.Release("live")

	h.createJob(t, "done", old)
	_, err := h.tracker.Update(ctx, "done", func(j *jobs.Job) error {
		j.Complete("analysis-1", time.Now())
		return nil
	})
	require.NoError(t, err)
	// Update bumps UpdatedAt; push it back so only the status protects it.
	done, err := h.store.GetJob(ctx, "done")
	require.NoError(t, err)
	done.UpdatedAt = old
	require.NoError(t, h.store.UpsertJob(ctx, done))

	sub := h.bus.Subscribe("stale")
	defer sub.Close()

	report, err := h.janitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, report.ReapedJobs)

	stale, err := h.tracker.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, stale.Status)
	assert.Equal(t, InterruptedMessage, stale.ErrorMessage)

	for _, id := range []string{"fresh", "live"} {
		j, err := h.tracker.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusPending, j.Status, id)
	}
	j, err := h.tracker.Get(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, j.Status)

	select {
	case ev := <-sub.C:
		assert.Equal(t, InterruptedMessage, ev.Error)
		assert.Equal(t, jobs.StageUploading, ev.Stage)
		assert.Equal(t, 2, ev.Total)
		assert.True(t, ev.Terminal())
	case <-time.After(time.Second):
		t.Fatal("no event published for reaped job")
	}
}

func TestRunOnce_SweepsTempFiles(t *testing.T) {
	h := newHarness(t)
	old := time.Now().Add(-2 * time.Hour)

	stale := filepath.Join(h.tempDir, "transcribe-123.mp3")
	fresh := filepath.Join(h.tempDir, "transcribe-456.mp3")
	other := filepath.Join(h.tempDir, "keep-me.mp3")
	for _, p := range []string{stale, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("audio"), 0o644))
	}
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	report, err := h.janitor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.RemovedFiles)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}

func TestStartRejectsBadExpression(t *testing.T) {
	store := jobs.NewMemoryStore()
	j := New(jobs.NewTracker(store), store, nil, Options{CronExpr: "every now and then"})
	assert.Error(t, j.Start(context.Background()))
	j.Stop()
}

func TestStartRunsImmediately(t *testing.T) {
	h := newHarness(t)
	h.createJob(t, "stale", time.Now().Add(-2*time.Hour))

	require.NoError(t, h.janitor.Start(context.Background()))
	defer h.janitor.Stop()

	j, err := h.tracker.Get(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, j.Status)
}
