package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/NYTimes/gziphandler"
	"github.com/julienschmidt/httprouter"

	"chicommute/internal/auth"
	"chicommute/internal/catalog"
	"chicommute/internal/cta"
	"chicommute/internal/feed"
	"chicommute/internal/metra"
	"chicommute/internal/metrics"
	"chicommute/internal/schedule"
	"chicommute/internal/suggest"
)

const maxBodyBytes = 1 << 20

var (
	errBadRequest = errors.New("bad request")

	// errCodes maps known errors to HTTP status codes. Checked in order with
	// errors.Is.
	errCodes = []struct {
		err  error
		code int
	}{
		{errBadRequest, http.StatusBadRequest},
		{auth.ErrNoSession, http.StatusUnauthorized},
		{auth.ErrInvalidUser, http.StatusBadRequest},
		{catalog.ErrUnknownLine, http.StatusNotFound},
		{catalog.ErrUnknownStation, http.StatusNotFound},
		{feed.ErrNoLineSelected, http.StatusBadRequest},
		{metra.ErrUnknownEndpoint, http.StatusNotFound},
		{schedule.ErrNotFound, http.StatusNotFound},
		{suggest.ErrInFlight, http.StatusConflict},
		{suggest.ErrInvalidDateTime, http.StatusBadRequest},
		{cta.ErrMissingParam, http.StatusBadRequest},
		{cta.ErrInvalidMapID, http.StatusBadRequest},
		{cta.ErrMissingAPIKey, http.StatusServiceUnavailable},
	}
)

// Server holds the collaborators behind the HTTP surface. Every field except
// Catalog may be nil, in which case the matching routes answer 503.
type Server struct {
	Catalog       *catalog.Catalog
	Feed          *feed.Poller
	FilterOptions feed.FilterOptions
	CTA           *cta.Client
	Sessions      *auth.Sessions
	Schedules     *schedule.Book
	Suggestions   *suggest.Service
	Metrics       *metrics.Collector
}

// Handler returns the routed, CORS-enabled and gzip-compressed API.
func (s *Server) Handler() http.Handler {
	r := httprouter.New()
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.PanicHandler = func(w http.ResponseWriter, req *http.Request, v interface{}) {
		log.Printf("panic serving %s %s: %v", req.Method, req.URL.Path, v)
		httpError(w, http.StatusInternalServerError, "internal error")
	}

	r.GET("/api/health", s.getHealth)

	// Static line/station catalog
	r.GET("/api/lines", s.getLines)
	r.GET("/api/lines/:line/stations", s.getStations)

	// Metra realtime snapshot, raw and filtered
	r.GET("/api/metra/feed/:endpoint", s.getFeed)
	r.GET("/api/metra/view", s.getView)
	r.POST("/api/metra/refresh", s.postRefresh)

	// CTA proxy
	r.GET("/api/cta/bus/:call", s.getBus)
	r.GET("/api/cta/train", s.getTrain)

	r.POST("/api/session", s.postSession)
	r.GET("/api/session", s.getSession)
	r.DELETE("/api/session", s.deleteSession)

	r.GET("/api/schedules", s.getSchedules)
	r.POST("/api/schedules", s.postSchedule)
	r.PUT("/api/schedules/:id", s.putSchedule)
	r.DELETE("/api/schedules/:id", s.deleteSchedule)

	r.POST("/api/suggestions", s.postSuggestions)

	if s.Metrics != nil {
		r.Handler(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	return gziphandler.GzipHandler(withCORS(r))
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	resp := map[string]any{"status": "ok"}
	if s.Feed != nil {
		resp["feed"] = s.Feed.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

// apiErr writes the status and body matching err. Unknown errors are logged
// and reported as 500.
func apiErr(w http.ResponseWriter, err error) {
	var (
		verr  *schedule.ValidationError
		ierr  *suggest.InputError
		cfErr *cta.FetchError
		mfErr *metra.FetchError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid schedule item", Fields: verr.Fields})
		return
	case errors.As(err, &ierr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid suggestion request", Fields: ierr.Fields})
		return
	}

	for _, ec := range errCodes {
		if errors.Is(err, ec.err) {
			httpError(w, ec.code, err.Error())
			return
		}
	}

	switch {
	case errors.As(err, &cfErr), errors.As(err, &mfErr):
		log.Printf("upstream error: %v", err)
		httpError(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("internal error: %v", err)
		httpError(w, http.StatusInternalServerError, "internal error")
	}
}

func unavailable(w http.ResponseWriter, what string) {
	httpError(w, http.StatusServiceUnavailable, what+" is not configured")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// currentUser resolves the request's bearer token. It writes the error
// response itself and reports ok=false when there is no usable session.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	if s.Sessions == nil {
		unavailable(w, "sign-in")
		return auth.User{}, false
	}
	u, err := s.Sessions.Current(r.Context(), bearerToken(r))
	if err != nil {
		apiErr(w, err)
		return auth.User{}, false
	}
	return u, true
}
