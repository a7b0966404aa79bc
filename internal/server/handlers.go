package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dshills/tandem/internal/jobs"
	"github.com/dshills/tandem/internal/orchestrator"
	"github.com/dshills/tandem/internal/workspace"
)

// multipartMemory is how much of a submission is buffered before spilling to disk.
const multipartMemory = 32 << 20

type submitForm struct {
	JobID        string   `validate:"omitempty,max=128,printascii,excludesall=/"`
	Diff         string   `validate:"required"`
	ChangedFiles []string `validate:"dive,required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type submitResponse struct {
	JobID  string      `json:"jobId"`
	Status jobs.Status `json:"status"`
}

type listResponse struct {
	Jobs  []jobs.Job `json:"jobs"`
	Count int        `json:"count"`
}

type cancelResponse struct {
	ID     string      `json:"id"`
	Status jobs.Status `json:"status"`
}

// handleSubmit accepts a multipart form with a zipped workspace ("workspace"),
// the unified diff ("diff"), optional changed files ("changed_files", comma or
// newline separated) and an optional caller-chosen "job_id".
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			tooLarge(fmt.Sprintf("upload exceeds %d bytes", mbe.Limit)).write(w)
			return
		}
		badRequest("expected a multipart form").write(w)
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := submitForm{
		JobID:        strings.TrimSpace(r.FormValue("job_id")),
		Diff:         r.FormValue("diff"),
		ChangedFiles: splitList(r.FormValue("changed_files")),
	}
	if err := validate.Struct(form); err != nil {
		validationFailed("invalid submission", fieldErrors(err)).write(w)
		return
	}

	ws, apiErr := s.receiveWorkspace(r)
	if apiErr != nil {
		apiErr.write(w)
		return
	}

	id, err := s.submitter.Submit(r.Context(), orchestrator.Request{
		JobID:        form.JobID,
		Workspace:    ws,
		Diff:         form.Diff,
		ChangedFiles: form.ChangedFiles,
	})
	if err != nil {
		if errors.Is(err, jobs.ErrExists) {
			conflict(fmt.Sprintf("job %s already exists", form.JobID)).write(w)
			return
		}
		s.logger.Error("submit failed", zap.Error(err))
		internalError().write(w)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: id, Status: jobs.StatusPending})
}

// receiveWorkspace spools the uploaded zip to disk and extracts it into an owned workspace.
func (s *Server) receiveWorkspace(r *http.Request) (*workspace.Workspace, *apiError) {
	file, _, err := r.FormFile("workspace")
	if err != nil {
		return nil, badRequest("missing workspace archive")
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "tandem-upload-*.zip")
	if err != nil {
		s.logger.Error("creating upload file", zap.Error(err))
		return nil, internalError()
	}
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.logger.Error("spooling upload", zap.Error(err))
		return nil, internalError()
	}

	ws, err := workspace.Extract(tmp.Name())
	if err != nil {
		return nil, badRequest(fmt.Sprintf("invalid workspace archive: %v", err))
	}
	return ws, nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	list := s.store.List()
	for i := range list {
		// The listing is a status view; results are fetched per job.
		list[i].Result = nil
		list[i].Logs = nil
	}
	writeJSON(w, http.StatusOK, listResponse{Jobs: list, Count: len(list)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	snap := s.store.View(chi.URLParam(r, "id"))
	status := http.StatusOK
	if snap.Status == jobs.StatusNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, snap)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.store.Cancel(id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, cancelResponse{ID: id, Status: jobs.StatusNotFound})
		return
	}
	if err != nil {
		s.logger.Error("cancel failed", zap.String("job_id", id), zap.Error(err))
		internalError().write(w)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{ID: id, Status: st})
}

func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == '\r' })
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out[fe.Field()] = fe.Tag()
		}
	}
	return out
}
