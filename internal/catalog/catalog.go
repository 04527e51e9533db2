// Package catalog holds the static line/station reference table.
//
// The table is decoded once from YAML and never mutated afterwards; accessors
// hand out copies so callers cannot alter shared state.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yml
var defaultYAML []byte

var (
	ErrUnknownLine    = errors.New("unknown line")
	ErrUnknownStation = errors.New("unknown station")
)

type Station struct {
	ID   string  `yaml:"id" json:"id" validate:"required"`
	Name string  `yaml:"name" json:"name" validate:"required"`
	Lat  float64 `yaml:"lat" json:"latitude" validate:"gte=-90,lte=90"`
	Lon  float64 `yaml:"lon" json:"longitude" validate:"gte=-180,lte=180"`
}

type Line struct {
	ID       string    `yaml:"id" json:"id" validate:"required"`
	Name     string    `yaml:"name" json:"name" validate:"required"`
	Color    string    `yaml:"color" json:"color" validate:"omitempty,hexcolor"`
	Stations []Station `yaml:"stations" json:"stations" validate:"required,min=1,dive"`
}

type document struct {
	Lines []Line `yaml:"lines" validate:"required,min=1,dive"`
}

type Catalog struct {
	lines []Line
	byID  map[string]int
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultYAML)
}

// MustDefault is Default for process start-up; the embedded table is part of
// the build, so a decode failure is a programming error.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := validator.New().Struct(doc); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	c := &Catalog{lines: doc.Lines, byID: make(map[string]int, len(doc.Lines))}
	for i, l := range doc.Lines {
		if _, dup := c.byID[l.ID]; dup {
			return nil, fmt.Errorf("validate catalog: duplicate line %q", l.ID)
		}
		seen := map[string]struct{}{}
		for _, s := range l.Stations {
			if _, dup := seen[s.ID]; dup {
				return nil, fmt.Errorf("validate catalog: station %q listed twice on %s", s.ID, l.ID)
			}
			seen[s.ID] = struct{}{}
		}
		c.byID[l.ID] = i
	}
	return c, nil
}

// Lines returns every line in catalog order.
func (c *Catalog) Lines() []Line {
	out := make([]Line, len(c.lines))
	for i, l := range c.lines {
		out[i] = copyLine(l)
	}
	return out
}

func (c *Catalog) Line(id string) (Line, error) {
	i, ok := c.byID[id]
	if !ok {
		return Line{}, fmt.Errorf("%w: %q", ErrUnknownLine, id)
	}
	return copyLine(c.lines[i]), nil
}

// Stations returns the ordered station list of a line.
func (c *Catalog) Stations(lineID string) ([]Station, error) {
	l, err := c.Line(lineID)
	if err != nil {
		return nil, err
	}
	return l.Stations, nil
}

// Station looks a station up within a line. The same id may exist on other
// lines; membership is always checked against the given line.
func (c *Catalog) Station(lineID, stationID string) (Station, error) {
	i, ok := c.byID[lineID]
	if !ok {
		return Station{}, fmt.Errorf("%w: %q", ErrUnknownLine, lineID)
	}
	for _, s := range c.lines[i].Stations {
		if s.ID == stationID {
			return s, nil
		}
	}
	return Station{}, fmt.Errorf("%w: %q on line %s", ErrUnknownStation, stationID, lineID)
}

// LinesServing lists the ids of every line that stops at stationID.
func (c *Catalog) LinesServing(stationID string) []string {
	var ids []string
	for _, l := range c.lines {
		for _, s := range l.Stations {
			if s.ID == stationID {
				ids = append(ids, l.ID)
				break
			}
		}
	}
	return ids
}

func copyLine(l Line) Line {
	l.Stations = append([]Station(nil), l.Stations...)
	return l
}
