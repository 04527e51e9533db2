package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// getBus proxies one Bus Tracker call. The upstream JSON is passed through
// untouched.
func (s *Server) getBus(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if s.CTA == nil {
		unavailable(w, "cta proxy")
		return
	}
	q := r.URL.Query()
	ctx := r.Context()

	var (
		body json.RawMessage
		err  error
	)
	switch p.ByName("call") {
	case "routes":
		body, err = s.CTA.BusRoutes(ctx)
	case "directions":
		body, err = s.CTA.BusDirections(ctx, q.Get("rt"))
	case "stops":
		body, err = s.CTA.BusStops(ctx, q.Get("rt"), q.Get("dir"))
	case "predictions":
		body, err = s.CTA.BusPredictions(ctx, q.Get("rt"), q.Get("stop_id"))
	case "vehicles":
		body, err = s.CTA.BusVehicles(ctx, q.Get("rt"))
	default:
		httpError(w, http.StatusNotFound, "unknown bus call "+p.ByName("call"))
		return
	}
	if err != nil {
		apiErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) getTrain(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.CTA == nil {
		unavailable(w, "cta proxy")
		return
	}
	board, err := s.CTA.TrainArrivals(r.Context(), r.URL.Query().Get("mapid"))
	if err != nil {
		apiErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}
