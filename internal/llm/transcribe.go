package llm

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
	"github.com/MimeLyc/sales-playbook/internal/metrics"
	"github.com/MimeLyc/sales-playbook/pkg/log"
)

const (
	DefaultTranscriptionLanguage = "pt"
	// TempFilePattern names the scratch files written before upload. The
	// maintenance sweeper removes leftovers matching it.
	TempFilePattern = "transcribe-*"
)

type transcriptAPI interface {
	TranscribeFromReader(ctx context.Context, r io.Reader, params *aai.TranscriptOptionalParams) (aai.Transcript, error)
}

// AssemblyAITranscriber transcribes audio with speaker diarisation.
type AssemblyAITranscriber struct {
	api      transcriptAPI
	language string
	tempDir  string
}

var _ Transcriber = (*AssemblyAITranscriber)(nil)

func NewAssemblyAITranscriber(apiKey, language string) (*AssemblyAITranscriber, error) {
	if apiKey == "" {
		return nil, apperr.NewError(apperr.ErrConfig, "ASSEMBLYAI_API_KEY is not configured")
	}
	return newAssemblyAITranscriber(aai.NewClient(apiKey).Transcripts, language, ""), nil
}

func newAssemblyAITranscriber(api transcriptAPI, language, tempDir string) *AssemblyAITranscriber {
	if language == "" {
		language = DefaultTranscriptionLanguage
	}
	return &AssemblyAITranscriber{api: api, language: language, tempDir: tempDir}
}

func (t *AssemblyAITranscriber) TranscribeAudio(ctx context.Context, data []byte, filename string) (Transcription, error) {
	start := time.Now()
	log.Info("Starting audio transcription with diarization: %s (%d bytes)", filename, len(data))

	f, err := os.CreateTemp(t.tempDir, TempFilePattern+filepath.Ext(filename))
	if err != nil {
		return Transcription{}, apperr.WrapError(err, apperr.ErrStorage, "failed to stage audio for transcription")
	}
	defer func() {
		_ = f.Close()
		if rmErr := os.Remove(f.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn("Failed to remove temp file %s: %v", f.Name(), rmErr)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return Transcription{}, apperr.WrapError(err, apperr.ErrStorage, "failed to stage audio for transcription")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Transcription{}, apperr.WrapError(err, apperr.ErrStorage, "failed to stage audio for transcription")
	}

	transcript, err := t.api.TranscribeFromReader(ctx, f, &aai.TranscriptOptionalParams{
		LanguageCode:  aai.TranscriptLanguageCode(t.language),
		SpeakerLabels: aai.Bool(true),
	})
	elapsed := time.Since(start)
	if err != nil {
		metrics.IncTranscription(false)
		log.Error("AssemblyAI API error after %dms: %v", elapsed.Milliseconds(), err)
		return Transcription{}, apperr.NewErrorWithCause(apperr.ErrUnavailable,
			"Transcription service temporarily unavailable. Please try again later.", err)
	}

	if transcript.Status == aai.TranscriptStatusError {
		metrics.IncTranscription(false)
		msg := aai.ToString(transcript.Error)
		if msg == "" {
			msg = "Unknown transcription error"
		}
		log.Error("AssemblyAI error: %s", msg)
		if strings.Contains(msg, "audio") {
			return Transcription{}, apperr.NewError(apperr.ErrValidation, "Audio file is invalid or corrupted").
				WithContext("filename", filename)
		}
		return Transcription{}, apperr.NewErrorWithCause(apperr.ErrUnavailable, "Transcription service error", fmt.Errorf("%s", msg))
	}

	metrics.IncTranscription(true)
	log.Info("Audio transcribed with diarization in %dms", elapsed.Milliseconds())
	return Transcription{Text: formatUtterances(transcript.Utterances)}, nil
}

// formatUtterances keeps neutral speaker labels; roles are inferred from
// content downstream.
func formatUtterances(utterances []aai.TranscriptUtterance) string {
	if len(utterances) == 0 {
		return ""
	}
	lines := make([]string, 0, len(utterances))
	for _, u := range utterances {
		lines = append(lines, fmt.Sprintf("Speaker %s: %s", aai.ToString(u.Speaker), aai.ToString(u.Text)))
	}
	return strings.Join(lines, "\n")
}
