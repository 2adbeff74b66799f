package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/fermentwatch/internal/audit"
	"github.com/nerrad567/fermentwatch/internal/control"
	"github.com/nerrad567/fermentwatch/internal/hub"
	"github.com/nerrad567/fermentwatch/internal/project"
)

type modeRequest struct {
	Mode project.ControlMode `json:"mode"`
}

type targetRequest struct {
	TargetTemperature *float64 `json:"target_temperature"`
}

type outletRequest struct {
	On *bool `json:"on"`
}

// handleListProjects returns every project with its last known state.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list projects")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects, "count": len(projects)})
}

// handleGetProject returns a single project by ID.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleCreateProject registers a fermentation project. Observed state
// (current temperature, outlet flag) always starts empty.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var p project.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	p.CurrentTemperature = nil
	p.OutletActive = false

	if err := s.projects.Create(r.Context(), &p); err != nil {
		switch {
		case errors.Is(err, project.ErrInvalidProject):
			writeValidationError(w, err.Error())
		case errors.Is(err, project.ErrProjectExists):
			writeConflict(w, "project already exists")
		default:
			writeInternalError(w, "failed to create project")
		}
		return
	}
	s.journal(r, audit.ActionCreate, audit.EntityProject, p.ID, map[string]any{
		"name":               p.Name,
		"sensor_ref":         p.SensorRef,
		"outlet_ref":         p.OutletRef,
		"target_temperature": p.TargetTemperature,
		"control_mode":       p.ControlMode,
	})

	writeJSON(w, http.StatusCreated, p)
}

// handleDeleteProject removes a project. Recorded history is kept.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.projects.Delete(r.Context(), id); err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			writeNotFound(w, "project not found")
			return
		}
		writeInternalError(w, "failed to delete project")
		return
	}
	s.journal(r, audit.ActionDelete, audit.EntityProject, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleSetMode switches a project between automatic and manual control.
// The loop picks the new mode up on its next cycle.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.projects.UpdateControlMode(r.Context(), id, req.Mode); err != nil {
		s.writeProjectUpdateError(w, err, "failed to update control mode")
		return
	}
	s.logger.Info("control mode changed", "project_id", id, "mode", req.Mode)
	s.journal(r, audit.ActionMode, audit.EntityProject, id, map[string]any{"mode": req.Mode})

	s.respondWithProject(w, r, id)
}

// handleSetTarget changes a project's set point.
func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.TargetTemperature == nil {
		writeValidationError(w, "target_temperature is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.projects.UpdateTargetTemperature(r.Context(), id, *req.TargetTemperature); err != nil {
		s.writeProjectUpdateError(w, err, "failed to update target temperature")
		return
	}
	s.logger.Info("target temperature changed", "project_id", id, "target", *req.TargetTemperature)
	s.journal(r, audit.ActionTarget, audit.EntityProject, id, map[string]any{"target_temperature": *req.TargetTemperature})

	s.respondWithProject(w, r, id)
}

// handleSetOutlet switches the outlet of a project in manual mode.
func (s *Server) handleSetOutlet(w http.ResponseWriter, r *http.Request) {
	var req outletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.On == nil {
		writeValidationError(w, "on is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.loop.SetOutletManual(r.Context(), id, *req.On); err != nil {
		switch {
		case errors.Is(err, project.ErrProjectNotFound):
			writeNotFound(w, "project not found")
		case errors.Is(err, control.ErrManualModeRequired):
			writeConflict(w, "project is under automatic control; switch it to manual first")
		case errors.Is(err, control.ErrConfiguration):
			writeError(w, http.StatusUnprocessableEntity, ErrCodeMisconfigured, err.Error())
		case errors.Is(err, hub.ErrHubUnavailable), errors.Is(err, hub.ErrDeviceUnavailable):
			writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "outlet could not be switched")
		case errors.Is(err, control.ErrPersistence):
			writeInternalError(w, "outlet switched but its state could not be stored")
		default:
			writeInternalError(w, "failed to switch outlet")
		}
		return
	}
	s.journal(r, audit.ActionOutlet, audit.EntityProject, id, map[string]any{"on": *req.On})

	s.respondWithProject(w, r, id)
}

// loadProject fetches the {id} project, writing the error response itself
// when it cannot.
func (s *Server) loadProject(w http.ResponseWriter, r *http.Request) (*project.Project, bool) {
	p, err := s.projects.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			writeNotFound(w, "project not found")
			return nil, false
		}
		writeInternalError(w, "failed to get project")
		return nil, false
	}
	return p, true
}

func (s *Server) respondWithProject(w http.ResponseWriter, r *http.Request, id string) {
	p, err := s.projects.GetByID(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to reload project")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) writeProjectUpdateError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, project.ErrProjectNotFound):
		writeNotFound(w, "project not found")
	case errors.Is(err, project.ErrInvalidProject):
		writeValidationError(w, err.Error())
	default:
		writeInternalError(w, fallback)
	}
}
