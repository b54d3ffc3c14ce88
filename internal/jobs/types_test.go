package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_AdvanceIsMonotonic(t *testing.T) {
	j := New("j", []FileInfo{{}, {}}, time.Now())

	for _, st := range []Stage{StageUploading, StageTranscribing, StageTranscribing, StageDetecting, StageAnalyzing, StageGenerating, StageDone} {
		require.NoError(t, j.Advance(st))
	}
	assert.Error(t, j.Advance(StageAnalyzing))
	assert.Error(t, j.Advance(Stage("bogus")))
	assert.Equal(t, StageDone, j.CurrentStage)
}

func TestJob_MarkFileProcessedCountsOnce(t *testing.T) {
	j := New("j", []FileInfo{{Filename: "a.txt"}, {Filename: "b.txt"}}, time.Now())

	require.NoError(t, j.MarkFileProcessed(1, "too short"))
	require.NoError(t, j.MarkFileProcessed(1, ""))
	assert.Equal(t, 1, j.ProcessedFiles)
	assert.Equal(t, "too short", j.Files[1].Error)
	assert.False(t, j.Files[0].Processed)
	assert.Equal(t, 1, j.FailedFiles())

	assert.Error(t, j.MarkFileProcessed(2, ""))
}

func TestJob_CompleteAndFailInvariants(t *testing.T) {
	j := New("j", []FileInfo{{}, {}}, time.Now())
	at := time.Now()

	j.Complete("analysis-1", at)
	require.NoError(t, j.Validate())
	assert.Equal(t, StageDone, j.CurrentStage)
	require.NotNil(t, j.CompletedAt)

	j.Complete("analysis-1", at.Add(time.Hour))
	assert.True(t, j.CompletedAt.Equal(at))

	f := New("f", []FileInfo{{}, {}}, time.Now())
	f.Fail("")
	require.NoError(t, f.Validate())
	assert.NotEmpty(t, f.ErrorMessage)
}

func TestJob_CloneIsDeep(t *testing.T) {
	j := New("j", []FileInfo{{Filename: "a"}}, time.Now())
	c := j.Clone()
	c.Files[0].Filename = "changed"
	assert.Equal(t, "a", j.Files[0].Filename)
}
