package llm

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
)

type fakeTranscripts struct {
	got        []byte
	params     *aai.TranscriptOptionalParams
	transcript aai.Transcript
	err        error
}

func (f *fakeTranscripts) TranscribeFromReader(_ context.Context, r io.Reader, params *aai.TranscriptOptionalParams) (aai.Transcript, error) {
	f.got, _ = io.ReadAll(r)
	f.params = params
	return f.transcript, f.err
}

func tempEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestTranscribeAudio_FormatsUtterances(t *testing.T) {
	dir := t.TempDir()
	api := &fakeTranscripts{transcript: aai.Transcript{
		Status: aai.TranscriptStatusCompleted,
		Utterances: []aai.TranscriptUtterance{
			{Speaker: aai.String("A"), Text: aai.String("Bom dia")},
			{Speaker: aai.String("B"), Text: aai.String("Olá, tudo bem?")},
		},
	}}
	tr := newAssemblyAITranscriber(api, "", dir)

	out, err := tr.TranscribeAudio(context.Background(), []byte("RIFF-audio"), "call.wav")
	require.NoError(t, err)
	assert.Equal(t, "Speaker A: Bom dia\nSpeaker B: Olá, tudo bem?", out.Text)
	assert.Equal(t, []byte("RIFF-audio"), api.got)
	assert.Equal(t, aai.TranscriptLanguageCode("pt"), api.params.LanguageCode)
	assert.True(t, aai.ToBool(api.params.SpeakerLabels))
	assert.Empty(t, tempEntries(t, dir))
}

func TestTranscribeAudio_NoUtterancesIsEmpty(t *testing.T) {
	api := &fakeTranscripts{transcript: aai.Transcript{Status: aai.TranscriptStatusCompleted}}
	tr := newAssemblyAITranscriber(api, "en", t.TempDir())

	out, err := tr.TranscribeAudio(context.Background(), []byte("x"), "a.mp3")
	require.NoError(t, err)
	assert.Empty(t, out.Text)
	assert.Equal(t, aai.TranscriptLanguageCode("en"), api.params.LanguageCode)
}

func TestTranscribeAudio_ErrorMapping(t *testing.T) {
	cases := map[string]struct {
		api  *fakeTranscripts
		want apperr.ErrorType
	}{
		"bad audio": {
			api: &fakeTranscripts{transcript: aai.Transcript{
				Status: aai.TranscriptStatusError,
				Error:  aai.String("File does not appear to contain audio"),
			}},
			want: apperr.ErrValidation,
		},
		"provider failure status": {
			api: &fakeTranscripts{transcript: aai.Transcript{
				Status: aai.TranscriptStatusError,
				Error:  aai.String("internal failure"),
			}},
			want: apperr.ErrUnavailable,
		},
		"transport error": {
			api:  &fakeTranscripts{err: errors.New("connection reset")},
			want: apperr.ErrUnavailable,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			tr := newAssemblyAITranscriber(tc.api, "", dir)

			_, err := tr.TranscribeAudio(context.Background(), []byte("x"), "a.ogg")
			require.Error(t, err)
			assert.True(t, apperr.IsErrorType(err, tc.want), "got %v", err)
			assert.Empty(t, tempEntries(t, dir))
		})
	}
}

func TestNewAssemblyAITranscriber_RequiresKey(t *testing.T) {
	_, err := NewAssemblyAITranscriber("", "pt")
	assert.True(t, apperr.IsErrorType(err, apperr.ErrConfig))
}
