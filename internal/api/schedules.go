package api

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"chicommute/internal/schedule"
)

const (
	loadWarning = "Your saved schedules could not be loaded. Changes are kept for this session and saved once they load."
	saveWarning = "Your change is kept for this session but could not be saved."
)

type schedulesResponse struct {
	Schedules []schedule.Item `json:"schedules"`
	Warning   string          `json:"warning,omitempty"`
}

type itemResponse struct {
	Item    *schedule.Item `json:"item,omitempty"`
	Warning string         `json:"warning,omitempty"`
}

// persistWarning turns a store failure into a user-facing warning. Any other
// error is returned for the caller to report.
func persistWarning(err error) (string, error) {
	var perr *schedule.PersistError
	if !errors.As(err, &perr) {
		return "", err
	}
	if perr.Op == "load" {
		return loadWarning, nil
	}
	return saveWarning, nil
}

func (s *Server) getSchedules(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.Schedules == nil {
		unavailable(w, "schedules")
		return
	}
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	items, err := s.Schedules.List(r.Context(), u.ID)
	warning, err := persistWarning(err)
	if err != nil {
		apiErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedulesResponse{Schedules: items, Warning: warning})
}

func (s *Server) postSchedule(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.upsertSchedule(w, r, "", http.StatusCreated)
}

func (s *Server) putSchedule(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	s.upsertSchedule(w, r, p.ByName("id"), http.StatusOK)
}

// upsertSchedule stores the posted item under id; an empty id creates a new
// item.
func (s *Server) upsertSchedule(w http.ResponseWriter, r *http.Request, id string, code int) {
	if s.Schedules == nil {
		unavailable(w, "schedules")
		return
	}
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	var it schedule.Item
	if err := decodeBody(w, r, &it); err != nil {
		apiErr(w, err)
		return
	}
	it.ID = id

	saved, err := s.Schedules.Upsert(r.Context(), u.ID, it)
	warning, err := persistWarning(err)
	if err != nil {
		apiErr(w, err)
		return
	}
	writeJSON(w, code, itemResponse{Item: &saved, Warning: warning})
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if s.Schedules == nil {
		unavailable(w, "schedules")
		return
	}
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	err := s.Schedules.Delete(r.Context(), u.ID, p.ByName("id"))
	warning, err := persistWarning(err)
	if err != nil {
		apiErr(w, err)
		return
	}
	if warning != "" {
		writeJSON(w, http.StatusOK, itemResponse{Warning: warning})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
