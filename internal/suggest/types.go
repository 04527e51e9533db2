// Package suggest drafts per-day commute plans for a user's schedule, either
// from a hosted language model or from a deterministic offline generator.
package suggest

import (
	"chicommute/internal/schedule"
)

type Mode string

const (
	ModeWalk  Mode = "Walk"
	ModeBus   Mode = "Bus"
	ModeTrain Mode = "Train"
	ModeDrive Mode = "Drive"
	ModeBike  Mode = "Bike"
	ModeOther Mode = "Other"
)

type Location struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

type Preferences struct {
	// PreferredMode is bus, train or any. Empty means any.
	PreferredMode string `json:"preferredMode,omitempty" validate:"omitempty,oneof=bus train any"`
	// MaxTransfers defaults to 2 when unset.
	MaxTransfers *int `json:"maxTransfers,omitempty" validate:"omitempty,min=0,max=5"`
}

const (
	defaultPreferredMode = "any"
	defaultMaxTransfers  = 2
)

type Input struct {
	Schedule            []schedule.Item `json:"schedule" validate:"-"`
	CurrentDateTime     string          `json:"currentDateTime" validate:"required"`
	CurrentUserLocation *Location       `json:"currentUserLocation,omitempty" validate:"omitempty"`
	ManualOriginAddress string          `json:"manualOriginAddress,omitempty"`
	Preferences         Preferences     `json:"preferences"`
}

// withDefaults fills unset preferences.
func (in Input) withDefaults() Input {
	if in.Preferences.PreferredMode == "" {
		in.Preferences.PreferredMode = defaultPreferredMode
	}
	if in.Preferences.MaxTransfers == nil {
		n := defaultMaxTransfers
		in.Preferences.MaxTransfers = &n
	}
	return in
}

type Step struct {
	Mode        Mode   `json:"mode" validate:"oneof=Walk Bus Train Drive Bike Other"`
	Instruction string `json:"instruction" validate:"required"`
	Line        string `json:"line,omitempty"`
	Duration    string `json:"duration,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type Details struct {
	Summary       string `json:"summary"`
	TotalDuration string `json:"totalDuration,omitempty"`
	Steps         []Step `json:"steps" validate:"required,dive"`
}

type Event struct {
	EventID     string  `json:"eventId" validate:"required"`
	EventName   string  `json:"eventName"`
	Destination string  `json:"destination"`
	Suggestion  Details `json:"suggestion"`
}

type DailySuggestion struct {
	Day    string  `json:"day" validate:"required"`
	Events []Event `json:"events" validate:"required,dive"`
}

type Output struct {
	DailySuggestions []DailySuggestion `json:"dailySuggestions" validate:"required,dive"`
}
