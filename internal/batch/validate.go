package batch

import (
	"path/filepath"
	"strings"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
)

const (
	MinFiles = 2
	MaxFiles = 20

	MaxTextFileSize  = 5 << 20
	MaxAudioFileSize = 25 << 20
)

var (
	AudioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".webm", ".flac"}
	TextExtensions  = []string{".txt"}
)

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// IsAudioFile classifies a file by its extension.
func IsAudioFile(name string) bool {
	return hasExt(name, AudioExtensions)
}

// ValidateFile enforces the extension allow-list and per-type size ceilings.
func ValidateFile(name string, size int64) error {
	switch {
	case IsAudioFile(name):
		if size > MaxAudioFileSize {
			return apperr.Errorf(apperr.ErrValidation, "%s: audio files must be at most %d MB", name, MaxAudioFileSize>>20)
		}
	case hasExt(name, TextExtensions):
		if size > MaxTextFileSize {
			return apperr.Errorf(apperr.ErrValidation, "%s: text files must be at most %d MB", name, MaxTextFileSize>>20)
		}
	default:
		return apperr.Errorf(apperr.ErrValidation, "%s: unsupported file type, allowed: %s",
			name, strings.Join(append(append([]string{}, TextExtensions...), AudioExtensions...), ", "))
	}
	if size == 0 {
		return apperr.Errorf(apperr.ErrValidation, "%s: file is empty", name)
	}
	return nil
}

// ValidateCount enforces the batch size bounds.
func ValidateCount(n int) error {
	if n < MinFiles {
		return apperr.Errorf(apperr.ErrValidation, "Minimum %d files required for comparative analysis.", MinFiles)
	}
	if n > MaxFiles {
		return apperr.Errorf(apperr.ErrValidation, "Maximum %d files allowed per batch.", MaxFiles)
	}
	return nil
}
