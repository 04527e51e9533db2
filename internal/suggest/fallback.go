package suggest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"chicommute/internal/schedule"
)

var ErrInvalidDateTime = errors.New("invalid current date/time")

type DateTimeError struct {
	Value string
	Err   error
}

func (e *DateTimeError) Error() string {
	return fmt.Sprintf("%v %q: want RFC 3339 (e.g. 2025-03-03T08:15:00-06:00): %v", ErrInvalidDateTime, e.Value, e.Err)
}

func (e *DateTimeError) Unwrap() error { return ErrInvalidDateTime }

// Generator builds mock suggestions without any network access.
type Generator struct {
	// Location decides which calendar day an instant falls on. Nil uses the
	// offset carried by the timestamp itself.
	Location *time.Location
}

func (g Generator) instant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &DateTimeError{Value: s, Err: err}
	}
	if g.Location != nil {
		t = t.In(g.Location)
	}
	return t, nil
}

// Generate returns suggestions for every item on today or tomorrow, today's
// bucket first. If the schedule has items but none on those days, the first
// item is suggested for its earliest day of the week.
func (g Generator) Generate(in Input) (Output, error) {
	now, err := g.instant(in.CurrentDateTime)
	if err != nil {
		return Output{}, err
	}
	in = in.withDefaults()

	todayDate := now
	tomorrowDate := now.AddDate(0, 0, 1)
	today := schedule.DayOf(todayDate.Weekday())
	tomorrow := schedule.DayOf(tomorrowDate.Weekday())

	origin := originDescription(in)
	todayBucket := DailySuggestion{Day: todayDate.Weekday().String()}
	tomorrowBucket := DailySuggestion{Day: tomorrowDate.Weekday().String()}
	for _, it := range in.Schedule {
		if it.OccursOn(today) {
			todayBucket.Events = append(todayBucket.Events, mockEvent(it, todayBucket.Day, origin, in.Preferences.PreferredMode))
		}
		if it.OccursOn(tomorrow) {
			tomorrowBucket.Events = append(tomorrowBucket.Events, mockEvent(it, tomorrowBucket.Day, origin, in.Preferences.PreferredMode))
		}
	}

	out := Output{DailySuggestions: []DailySuggestion{}}
	if len(todayBucket.Events) > 0 {
		out.DailySuggestions = append(out.DailySuggestions, todayBucket)
	}
	if len(tomorrowBucket.Events) > 0 {
		out.DailySuggestions = append(out.DailySuggestions, tomorrowBucket)
	}

	if len(out.DailySuggestions) == 0 && len(in.Schedule) > 0 {
		first := in.Schedule[0].Normalize()
		if len(first.Days) > 0 {
			if wd, ok := first.Days[0].Weekday(); ok {
				day := wd.String()
				out.DailySuggestions = append(out.DailySuggestions, DailySuggestion{
					Day:    day,
					Events: []Event{mockEvent(in.Schedule[0], day, origin, in.Preferences.PreferredMode)},
				})
			}
		}
	}
	return out, nil
}

func mockEvent(it schedule.Item, day, origin, preferredMode string) Event {
	return Event{
		EventID:     it.ID,
		EventName:   it.Name,
		Destination: it.Location,
		Suggestion: Details{
			Summary:       fmt.Sprintf("Mock: For %s on %s to %s: Quick transit.", it.Name, day, it.Location),
			TotalDuration: "Approx. 20 min (Mock)",
			Steps: []Step{
				{Mode: ModeWalk, Instruction: fmt.Sprintf("Walk from %s to a nearby stop.", origin), Duration: "5 min"},
				{Mode: transitMode(preferredMode), Instruction: fmt.Sprintf("Take transit towards %s.", it.Location), Duration: "10 min"},
				{Mode: ModeWalk, Instruction: fmt.Sprintf("Walk to %s.", it.Location), Duration: "5 min"},
			},
		},
	}
}

func transitMode(preferred string) Mode {
	switch preferred {
	case "bus":
		return ModeBus
	case "train":
		return ModeTrain
	}
	return ModeBus
}

// originDescription prefers a typed address over coordinates.
func originDescription(in Input) string {
	if addr := strings.TrimSpace(in.ManualOriginAddress); addr != "" {
		return "address: " + addr
	}
	if loc := in.CurrentUserLocation; loc != nil {
		return fmt.Sprintf("current location (Lat: %.2f, Lon: %.2f)", loc.Latitude, loc.Longitude)
	}
	return "your current location"
}
