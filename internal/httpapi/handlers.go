package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MimeLyc/sales-playbook/internal/analysis"
	"github.com/MimeLyc/sales-playbook/internal/apperr"
	"github.com/MimeLyc/sales-playbook/internal/batch"
	"github.com/MimeLyc/sales-playbook/internal/jobs"
	"github.com/MimeLyc/sales-playbook/pkg/log"
)

const (
	multipartMemory = 32 << 20
	// multipartOverhead covers boundaries and headers around the file parts.
	multipartOverhead = 1 << 20
)

// jobView is the API representation of a batch job.
type jobView struct {
	*jobs.Job
	AnalysisID string `json:"analysisId,omitempty"`
}

func newJobView(j *jobs.Job) jobView {
	return jobView{Job: j, AnalysisID: j.ResultReference}
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	raw, err := readMultipartFiles(w, r, "files", batch.MaxFiles)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(raw) == 0 {
		writeErrorMessage(w, r, http.StatusBadRequest, "No files provided")
		return
	}

	job, err := s.batches.SubmitBatch(r.Context(), raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newJobView(job))
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	job, err := s.batches.GetJobStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(job))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	raw, err := readMultipartFiles(w, r, "file", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(raw) != 1 {
		writeErrorMessage(w, r, http.StatusBadRequest, "File is required")
		return
	}

	res, err := s.batches.ProcessUpload(r.Context(), raw[0])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type createAnalysisRequest struct {
	Transcripts []struct {
		Content string `json:"content"`
	} `json:"transcripts"`
}

func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var req createAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	texts := make([]string, len(req.Transcripts))
	for i, t := range req.Transcripts {
		texts[i] = t.Content
	}

	a, err := s.analyses.CreateFromTexts(r.Context(), texts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	list, err := s.analyses.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*analysis.Analysis{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.analyses.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := s.analyses.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.files.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	rec, rc, err := s.files.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := rec.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalFilename))
	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log.Warn("Download of file %s interrupted: %v", rec.ID, err)
	}
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.files.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readMultipartFiles reads up to limit files of field. Every file is checked
// against the extension allow-list and size ceilings before it is read.
func readMultipartFiles(w http.ResponseWriter, r *http.Request, field string, limit int) ([]batch.RawFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(limit)*batch.MaxAudioFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.NewError(apperr.ErrValidation, "Request body too large")
		}
		return nil, apperr.WrapError(err, apperr.ErrValidation, "invalid multipart form")
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	headers := r.MultipartForm.File[field]
	if len(headers) > limit {
		return nil, apperr.Errorf(apperr.ErrValidation, "Maximum %d files allowed per batch.", limit)
	}

	ret := make([]batch.RawFile, 0, len(headers))
	for _, fh := range headers {
		if err := batch.ValidateFile(fh.Filename, fh.Size); err != nil {
			return nil, err
		}
		data, err := readPart(fh)
		if err != nil {
			return nil, apperr.WrapError(err, apperr.ErrValidation, "failed to read uploaded file").WithContext("filename", fh.Filename)
		}
		ret = append(ret, batch.RawFile{
			Name:        fh.Filename,
			Data:        data,
			ContentType: fh.Header.Get("Content-Type"),
		})
	}
	return ret, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
