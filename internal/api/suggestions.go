package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"chicommute/internal/suggest"
)

type suggestionsResponse struct {
	suggest.Result
	Warning string `json:"warning,omitempty"`
}

// postSuggestions produces the daily commute plan for the signed-in user.
// Requests that omit "schedule" are planned against the user's saved list.
func (s *Server) postSuggestions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.Suggestions == nil {
		unavailable(w, "suggestions")
		return
	}
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	var in suggest.Input
	if err := decodeBody(w, r, &in); err != nil {
		apiErr(w, err)
		return
	}
	var warning string
	if in.Schedule == nil && s.Schedules != nil {
		items, err := s.Schedules.List(r.Context(), u.ID)
		if warning, err = persistWarning(err); err != nil {
			apiErr(w, err)
			return
		}
		in.Schedule = items
	}

	res, err := s.Suggestions.Suggest(r.Context(), u.ID, in)
	if err != nil {
		apiErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestionsResponse{Result: res, Warning: warning})
}
