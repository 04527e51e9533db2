package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/julienschmidt/httprouter"

	"chicommute/internal/catalog"
	"chicommute/internal/feed"
	"chicommute/internal/metra"
)

const manualRefreshTimeout = 30 * time.Second

// getLines lists every line, or with ?station= only the lines stopping there.
func (s *Server) getLines(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	lines := s.Catalog.Lines()
	if station := r.URL.Query().Get("station"); station != "" {
		serving := s.Catalog.LinesServing(station)
		lines = slices.DeleteFunc(lines, func(l catalog.Line) bool {
			return !slices.Contains(serving, l.ID)
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (s *Server) getStations(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	stations, err := s.Catalog.Stations(p.ByName("line"))
	if err != nil {
		apiErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stations": stations})
}

// getFeed serves one collection of the current snapshot in the shape the
// Metra API returns it. When the last tick failed and no snapshot is held,
// the tick's error is reported as a 502.
func (s *Server) getFeed(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	endpoint := p.ByName("endpoint")
	if err := metra.ValidEndpoint(endpoint); err != nil {
		apiErr(w, err)
		return
	}
	if s.Feed == nil {
		unavailable(w, "metra feed")
		return
	}

	st := s.Feed.Status()
	if st.LastError != "" && st.UpdatedAt.IsZero() {
		httpError(w, http.StatusBadGateway, st.LastError)
		return
	}
	if st.Stale {
		w.Header().Set("X-Feed-Stale", "true")
	}

	snap := s.Feed.Snapshot()
	switch endpoint {
	case metra.EndpointAlerts:
		writeJSON(w, http.StatusOK, snap.Alerts)
	case metra.EndpointPositions:
		writeJSON(w, http.StatusOK, snap.Positions)
	case metra.EndpointTripUpdates:
		writeJSON(w, http.StatusOK, snap.TripUpdates)
	}
}

type viewResponse struct {
	Selection feed.Selection    `json:"selection"`
	Stations  []catalog.Station `json:"stations"`
	Status    feed.Status       `json:"status"`
	feed.View
}

// getView applies the line/boarding/destination selection from the query
// string to the current snapshot.
func (s *Server) getView(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.Feed == nil {
		unavailable(w, "metra feed")
		return
	}
	q := r.URL.Query()
	sel, stations, err := feed.Resolve(s.Catalog, q.Get("line"), q.Get("boarding"), q.Get("destination"))
	if err != nil {
		apiErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{
		Selection: sel,
		Stations:  stations,
		Status:    s.Feed.Status(),
		View:      feed.Filter(s.Feed.Snapshot(), sel, s.FilterOptions),
	})
}

func (s *Server) postRefresh(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.Feed == nil {
		unavailable(w, "metra feed")
		return
	}
	// the tick outlives a client that hangs up
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), manualRefreshTimeout)
	defer cancel()
	if err := s.Feed.Refresh(ctx); err != nil {
		httpError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Feed.Status())
}
