package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"chicommute/internal/auth"
)

type sessionResponse struct {
	Token string    `json:"token,omitempty"`
	User  auth.User `json:"user"`
}

// postSession opens a session for an identity already verified by the
// upstream provider.
func (s *Server) postSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.Sessions == nil {
		unavailable(w, "sign-in")
		return
	}
	var u auth.User
	if err := decodeBody(w, r, &u); err != nil {
		apiErr(w, err)
		return
	}
	token, err := s.Sessions.SignIn(r.Context(), u)
	if err != nil {
		apiErr(w, err)
		return
	}
	current, err := s.Sessions.Current(r.Context(), token)
	if err != nil {
		apiErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: current})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: u})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.Sessions == nil {
		unavailable(w, "sign-in")
		return
	}
	if err := s.Sessions.SignOut(r.Context(), bearerToken(r)); err != nil {
		apiErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
