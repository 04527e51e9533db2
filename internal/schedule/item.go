// Package schedule models a user's recurring commitments and keeps them in
// sync with a persistent store.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Day string

const (
	Mon Day = "Mon"
	Tue Day = "Tue"
	Wed Day = "Wed"
	Thu Day = "Thu"
	Fri Day = "Fri"
	Sat Day = "Sat"
	Sun Day = "Sun"
)

// AllDays is the canonical week order.
var AllDays = []Day{Mon, Tue, Wed, Thu, Fri, Sat, Sun}

func (d Day) index() int {
	for i, x := range AllDays {
		if x == d {
			return i
		}
	}
	return -1
}

func (d Day) Valid() bool { return d.index() >= 0 }

// Weekday converts to time.Weekday; ok is false for unknown days.
func (d Day) Weekday() (time.Weekday, bool) {
	i := d.index()
	if i < 0 {
		return 0, false
	}
	return time.Weekday((i + 1) % 7), true
}

func DayOf(w time.Weekday) Day {
	return AllDays[(int(w)+6)%7]
}

type Type string

const (
	TypeClass    Type = "class"
	TypeWork     Type = "work"
	TypePersonal Type = "personal"
	TypeOther    Type = "other"
)

type Item struct {
	ID        string `json:"id"`
	Name      string `json:"name" validate:"min=2"`
	Days      []Day  `json:"days" validate:"min=1,dive,oneof=Mon Tue Wed Thu Fri Sat Sun"`
	StartTime string `json:"startTime" validate:"hhmm"`
	EndTime   string `json:"endTime" validate:"hhmm"`
	Location  string `json:"location" validate:"min=3"`
	Type      Type   `json:"type" validate:"oneof=class work personal other"`
}

var hhmm = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmm.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		it := sl.Current().Interface().(Item)
		if !hhmm.MatchString(it.StartTime) || !hhmm.MatchString(it.EndTime) {
			return
		}
		// zero-padded HH:MM compares correctly as a string
		if it.EndTime <= it.StartTime {
			sl.ReportError(it.EndTime, "EndTime", "endTime", "aftertime", "")
		}
	}, Item{})
	return v
}

var fieldMessages = map[string]string{
	"Name.min":          "Name must be at least 2 characters.",
	"Days.min":          "Select at least one day.",
	"Days.oneof":        "Unknown day of week.",
	"StartTime.hhmm":    "Invalid time format (HH:MM).",
	"EndTime.hhmm":      "Invalid time format (HH:MM).",
	"EndTime.aftertime": "End time must be after start time.",
	"Location.min":      "Location must be at least 3 characters.",
	"Type.oneof":        "Type must be one of class, work, personal, other.",
}

var jsonNames = map[string]string{
	"Name":      "name",
	"Days":      "days",
	"StartTime": "startTime",
	"EndTime":   "endTime",
	"Location":  "location",
	"Type":      "type",
}

// ValidationError maps JSON field names to user-facing messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid schedule item: " + strings.Join(parts, "; ")
}

// Validate checks the item as the schedule form does. Call Normalize first
// so surrounding whitespace does not count towards lengths.
func (it Item) Validate() error {
	err := validate.Struct(it)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate schedule item: %w", err)
	}
	out := &ValidationError{Fields: map[string]string{}}
	for _, fe := range verrs {
		// dive errors are reported as Days[0] and carry the element tag
		field := fe.StructField()
		if strings.HasPrefix(field, "Days[") {
			field = "Days"
		}
		msg, ok := fieldMessages[field+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %s check", fe.Tag())
		}
		name := jsonNames[field]
		if _, seen := out.Fields[name]; !seen {
			out.Fields[name] = msg
		}
	}
	return out
}

// Normalize trims text fields and rewrites Days in week order without
// duplicates. Unknown days are kept, after the known ones, so Validate can
// reject them.
func (it Item) Normalize() Item {
	it.Name = strings.TrimSpace(it.Name)
	it.Location = strings.TrimSpace(it.Location)
	it.StartTime = strings.TrimSpace(it.StartTime)
	it.EndTime = strings.TrimSpace(it.EndTime)

	seen := make(map[Day]bool, len(it.Days))
	var unknown []Day
	for _, d := range it.Days {
		if seen[d] {
			continue
		}
		seen[d] = true
		if !d.Valid() {
			unknown = append(unknown, d)
		}
	}
	days := make([]Day, 0, len(seen))
	for _, d := range AllDays {
		if seen[d] {
			days = append(days, d)
		}
	}
	it.Days = append(days, unknown...)
	return it
}

// OccursOn reports whether the item recurs on d.
func (it Item) OccursOn(d Day) bool {
	for _, x := range it.Days {
		if x == d {
			return true
		}
	}
	return false
}
