package files

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
	"github.com/MimeLyc/sales-playbook/internal/storage"
	"github.com/MimeLyc/sales-playbook/pkg/log"
)

type Status string

const (
	StatusUploaded Status = "uploaded"
	StatusDeleted  Status = "deleted"
)

const DefaultBaseURL = "/api/v1/files"

var ErrNotFound = errors.New("file not found")

// Record describes one stored upload.
type Record struct {
	ID               string    `json:"id"`
	Key              string    `json:"key"`
	OriginalFilename string    `json:"originalFilename"`
	MimeType         string    `json:"mimeType"`
	Size             int64     `json:"size"`
	URL              string    `json:"url"`
	Status           Status    `json:"status"`
	BatchJobID       string    `json:"batchJobId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Store persists file records. GetFile returns ErrNotFound for unknown ids.
type Store interface {
	SaveFile(ctx context.Context, r *Record) error
	GetFile(ctx context.Context, id string) (*Record, error)
	ListFiles(ctx context.Context) ([]*Record, error)
}

type Upload struct {
	Data       []byte
	Filename   string
	MimeType   string
	BatchJobID string
}

type Service struct {
	backend storage.Backend
	store   Store
	baseURL string
	now     func() time.Time
}

func NewService(backend storage.Backend, store Store, baseURL string) *Service {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Service{
		backend: backend,
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Create writes the bytes to the backend and records them.
func (s *Service) Create(ctx context.Context, up Upload) (*Record, error) {
	now := s.now().UTC()
	key := storage.NewKey(up.Filename, now)

	if err := s.backend.Put(ctx, key, bytes.NewReader(up.Data), int64(len(up.Data)), up.MimeType); err != nil {
		return nil, apperr.WrapError(err, apperr.ErrStorage, "failed to store file").WithContext("filename", up.Filename)
	}

	rec := &Record{
		ID:               uuid.NewString(),
		Key:              key,
		OriginalFilename: up.Filename,
		MimeType:         up.MimeType,
		Size:             int64(len(up.Data)),
		URL:              s.baseURL + "/" + key,
		Status:           StatusUploaded,
		BatchJobID:       up.BatchJobID,
		CreatedAt:        now,
	}
	if err := s.store.SaveFile(ctx, rec); err != nil {
		if delErr := s.backend.Delete(ctx, key); delErr != nil {
			log.Warn("Failed to roll back stored object %s: %v", key, delErr)
		}
		return nil, apperr.WrapError(err, apperr.ErrStorage, "failed to record file").WithContext("filename", up.Filename)
	}
	log.Info("File saved: %s (%d bytes) on %s", key, rec.Size, s.backend.Name())
	return rec, nil
}

func (s *Service) List(ctx context.Context) ([]*Record, error) {
	list, err := s.store.ListFiles(ctx)
	if err != nil {
		return nil, apperr.WrapError(err, apperr.ErrStorage, "failed to list files")
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := s.store.GetFile(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.Errorf(apperr.ErrNotFound, "File with ID %s not found", id)
		}
		return nil, apperr.WrapError(err, apperr.ErrStorage, "failed to load file")
	}
	return rec, nil
}

// Open returns the record and its content. Deleted files are not found.
func (s *Service) Open(ctx context.Context, id string) (*Record, io.ReadCloser, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if rec.Status == StatusDeleted {
		return nil, nil, apperr.Errorf(apperr.ErrNotFound, "File with ID %s not found", id)
	}
	rc, err := s.backend.Get(ctx, rec.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, apperr.Errorf(apperr.ErrNotFound, "File not found: %s", rec.Key)
		}
		return nil, nil, apperr.WrapError(err, apperr.ErrStorage, "failed to read file")
	}
	return rec, rc, nil
}

// Delete removes the content and marks the record deleted. A backend
// failure is logged and does not keep the record alive.
func (s *Service) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, rec.Key); err != nil {
		log.Warn("Failed to delete file: %s: %v", rec.Key, err)
	} else {
		log.Info("File deleted: %s", rec.Key)
	}
	rec.Status = StatusDeleted
	if err := s.store.SaveFile(ctx, rec); err != nil {
		return apperr.WrapError(err, apperr.ErrStorage, "failed to update file record")
	}
	return nil
}

// MemoryStore keeps file records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) SaveFile(_ context.Context, r *Record) error {
	m.mu.Lock()
	m.records[r.ID] = *r
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetFile(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) ListFiles(_ context.Context) ([]*Record, error) {
	m.mu.RLock()
	out := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		r := r
		out = append(out, &r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
