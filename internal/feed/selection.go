package feed

import (
	"errors"

	"chicommute/internal/catalog"
)

var ErrNoLineSelected = errors.New("no line selected")

// Selection is the user's current line and station choice. Empty strings mean
// unselected. Values are only produced through the transition functions below,
// which keep the stations consistent with the line.
type Selection struct {
	Line        string `json:"line,omitempty"`
	Boarding    string `json:"boarding,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// SelectLine switches to line. Both station choices are cleared in the same
// step and the station list for the new line is returned for the picker. An
// empty line clears the whole selection.
func SelectLine(cat *catalog.Catalog, line string) (Selection, []catalog.Station, error) {
	if line == "" {
		return Selection{}, []catalog.Station{}, nil
	}
	stations, err := cat.Stations(line)
	if err != nil {
		return Selection{}, nil, err
	}
	return Selection{Line: line}, stations, nil
}

// WithBoarding sets the boarding station; the station must be on the
// selected line. An empty id clears it.
func (s Selection) WithBoarding(cat *catalog.Catalog, stationID string) (Selection, error) {
	if err := s.checkStation(cat, stationID); err != nil {
		return s, err
	}
	s.Boarding = stationID
	return s, nil
}

// WithDestination sets the destination station under the same rules as
// WithBoarding.
func (s Selection) WithDestination(cat *catalog.Catalog, stationID string) (Selection, error) {
	if err := s.checkStation(cat, stationID); err != nil {
		return s, err
	}
	s.Destination = stationID
	return s, nil
}

func (s Selection) checkStation(cat *catalog.Catalog, stationID string) error {
	if stationID == "" {
		return nil
	}
	if s.Line == "" {
		return ErrNoLineSelected
	}
	_, err := cat.Station(s.Line, stationID)
	return err
}

// Resolve builds a selection from raw request values by running the
// transitions in order.
func Resolve(cat *catalog.Catalog, line, boarding, destination string) (Selection, []catalog.Station, error) {
	sel, stations, err := SelectLine(cat, line)
	if err != nil {
		return Selection{}, nil, err
	}
	if sel, err = sel.WithBoarding(cat, boarding); err != nil {
		return Selection{}, nil, err
	}
	if sel, err = sel.WithDestination(cat, destination); err != nil {
		return Selection{}, nil, err
	}
	return sel, stations, nil
}
