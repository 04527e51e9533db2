package feed

import (
	"chicommute/internal/transit"
)

// Snapshot is one consistent set of the three realtime collections.
type Snapshot struct {
	Alerts      []transit.Alert           `json:"alerts"`
	Positions   []transit.VehiclePosition `json:"positions"`
	TripUpdates []transit.TripUpdate      `json:"tripUpdates"`
}

// View is the line/station scoped subset of a Snapshot.
type View struct {
	Alerts      []transit.Alert           `json:"alerts"`
	Positions   []transit.VehiclePosition `json:"positions"`
	TripUpdates []transit.TripUpdate      `json:"tripUpdates"`
}

type FilterOptions struct {
	// NarrowByDestination additionally requires trip updates to serve the
	// selected destination station. Off by default: only the boarding
	// station narrows trip updates.
	NarrowByDestination bool
}

// Filter derives the view for sel. Without a line, alerts pass through
// unchanged and positions and trip updates are empty. Input order is kept and
// the snapshot is never modified.
func Filter(snap Snapshot, sel Selection, opts FilterOptions) View {
	if sel.Line == "" {
		return View{
			Alerts:      snap.Alerts,
			Positions:   []transit.VehiclePosition{},
			TripUpdates: []transit.TripUpdate{},
		}
	}

	v := View{
		Alerts:      []transit.Alert{},
		Positions:   []transit.VehiclePosition{},
		TripUpdates: []transit.TripUpdate{},
	}
	for _, a := range snap.Alerts {
		if a.AffectsRoute(sel.Line) {
			v.Alerts = append(v.Alerts, a)
		}
	}
	for _, p := range snap.Positions {
		if route, ok := p.RouteID(); ok && route == sel.Line {
			v.Positions = append(v.Positions, p)
		}
	}
	for _, tu := range snap.TripUpdates {
		if tu.RouteID() != sel.Line {
			continue
		}
		if sel.Boarding != "" && !tu.ServesStop(sel.Boarding) {
			continue
		}
		if opts.NarrowByDestination && sel.Destination != "" && !tu.ServesStop(sel.Destination) {
			continue
		}
		v.TripUpdates = append(v.TripUpdates, tu)
	}
	return v
}
