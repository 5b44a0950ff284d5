package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sitequant/takeoff/internal/common"
)

type createProjectRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

type submitBatchRequest struct {
	IdempotencyKey string   `json:"idempotency_key" validate:"required,min=1,max=128"`
	FileIDs        []string `json:"file_ids" validate:"required,min=1,dive,uuid"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !s.decode(w, r, &req) {
		return
	}
	project, err := s.projects.Create(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.pathUUID(w, r, "projectID")
	if !ok {
		return
	}
	var req submitBatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	fileIDs := make([]uuid.UUID, 0, len(req.FileIDs))
	for _, raw := range req.FileIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, r, common.NewAppError("SUBMIT_BATCH", fmt.Sprintf("invalid file id %q", raw), common.ErrInvalidInput))
			return
		}
		fileIDs = append(fileIDs, id)
	}
	result, err := s.svc.SubmitBatch(r.Context(), projectID, fileIDs, req.IdempotencyKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.pathUUID(w, r, "jobID")
	if !ok {
		return
	}
	job, err := s.svc.JobByID(r.Context(), jobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRetryFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := s.pathUUID(w, r, "fileID")
	if !ok {
		return
	}
	job, err := s.svc.RetryFile(r.Context(), fileID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleProjectStatus(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.pathUUID(w, r, "projectID")
	if !ok {
		return
	}
	snap, err := s.svc.ProjectSnapshot(r.Context(), projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleProjectItems(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.pathUUID(w, r, "projectID")
	if !ok {
		return
	}
	items, err := s.svc.ProjectItems(r.Context(), projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleProjectExport(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.pathUUID(w, r, "projectID")
	if !ok {
		return
	}
	data, err := s.exporter.ExportItemsXLSX(r.Context(), projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", projectID.String()+"-items.xlsx"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("server.export.write_failed", "error", err)
	}
}

// decode unmarshals and validates a JSON request body, writing a 400 on
// failure. Returns false when the handler should bail out.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, r, common.NewAppError("DECODE", "invalid request body", common.ErrInvalidInput))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeError(w, r, common.NewAppError("VALIDATE", err.Error(), common.ErrValidation))
		return false
	}
	return true
}

func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		s.writeError(w, r, common.NewAppError("PATH", fmt.Sprintf("invalid %s", param), common.ErrInvalidInput))
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrRetryNotAllowed), errors.Is(err, common.ErrDependencyNotReady):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("server.request.failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
