package jobs

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage is the processing phase a job is in. Stages only move forward.
type Stage string

const (
	StageNone         Stage = ""
	StageUploading    Stage = "uploading"
	StageTranscribing Stage = "transcribing"
	StageDetecting    Stage = "detecting"
	StageAnalyzing    Stage = "analyzing"
	StageGenerating   Stage = "generating"
	StageDone         Stage = "done"
)

var stageOrder = map[Stage]int{
	StageNone:         0,
	StageUploading:    1,
	StageTranscribing: 2,
	StageDetecting:    3,
	StageAnalyzing:    4,
	StageGenerating:   5,
	StageDone:         6,
}

func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// FileInfo describes one submitted file. Its index in Job.Files is the
// submission index and never changes.
type FileInfo struct {
	Filename  string `json:"filename"`
	IsAudio   bool   `json:"isAudio"`
	Processed bool   `json:"processed"`
	Error     string `json:"error,omitempty"`
	Language  string `json:"language,omitempty"`
	FileID    string `json:"fileId,omitempty"`
	FileKey   string `json:"fileKey,omitempty"`
}

type Job struct {
	ID              string     `json:"jobId"`
	Status          Status     `json:"status"`
	CurrentStage    Stage      `json:"currentStage,omitempty"`
	TotalFiles      int        `json:"totalFiles"`
	ProcessedFiles  int        `json:"processedFiles"`
	Files           []FileInfo `json:"files"`
	ResultReference string     `json:"resultReference,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

func New(id string, files []FileInfo, now time.Time) *Job {
	cp := make([]FileInfo, len(files))
	copy(cp, files)
	return &Job{
		ID:         id,
		Status:     StatusPending,
		TotalFiles: len(cp),
		Files:      cp,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Advance moves the job to stage. Moving backwards is an error; staying put is not.
func (j *Job) Advance(stage Stage) error {
	if !stage.Valid() {
		return fmt.Errorf("unknown stage %q", stage)
	}
	if stage.Before(j.CurrentStage) {
		return fmt.Errorf("stage cannot move from %s back to %s", j.CurrentStage, stage)
	}
	j.CurrentStage = stage
	return nil
}

// MarkFileProcessed records the terminal state of the file at index.
// A file is counted once even if marked twice.
func (j *Job) MarkFileProcessed(index int, errMsg string) error {
	if index < 0 || index >= len(j.Files) {
		return fmt.Errorf("file index %d out of range [0,%d)", index, len(j.Files))
	}
	f := &j.Files[index]
	if errMsg != "" {
		f.Error = errMsg
	}
	if f.Processed {
		return nil
	}
	f.Processed = true
	if j.ProcessedFiles < j.TotalFiles {
		j.ProcessedFiles++
	}
	return nil
}

func (j *Job) Complete(resultRef string, at time.Time) {
	j.Status = StatusCompleted
	j.CurrentStage = StageDone
	j.ResultReference = resultRef
	j.ErrorMessage = ""
	if j.CompletedAt == nil {
		t := at
		j.CompletedAt = &t
	}
}

func (j *Job) Fail(msg string) {
	if msg == "" {
		msg = "processing failed"
	}
	j.Status = StatusFailed
	j.ErrorMessage = msg
}

// FailedFiles counts descriptors carrying an error.
func (j *Job) FailedFiles() int {
	n := 0
	for _, f := range j.Files {
		if f.Error != "" {
			n++
		}
	}
	return n
}

// Validate checks the invariants every persisted job must hold.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if len(j.Files) != j.TotalFiles {
		return fmt.Errorf("job %s has %d file descriptors for %d files", j.ID, len(j.Files), j.TotalFiles)
	}
	if j.ProcessedFiles < 0 || j.ProcessedFiles > j.TotalFiles {
		return fmt.Errorf("job %s processed %d of %d files", j.ID, j.ProcessedFiles, j.TotalFiles)
	}
	switch j.Status {
	case StatusCompleted:
		if j.ResultReference == "" || j.CurrentStage != StageDone {
			return fmt.Errorf("completed job %s needs a result reference and stage done", j.ID)
		}
	case StatusFailed:
		if j.ErrorMessage == "" {
			return fmt.Errorf("failed job %s needs an error message", j.ID)
		}
	}
	return nil
}

func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	tmp := *j
	tmp.Files = make([]FileInfo, len(j.Files))
	copy(tmp.Files, j.Files)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		tmp.CompletedAt = &t
	}
	return &tmp
}
