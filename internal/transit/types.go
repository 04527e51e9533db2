package transit

// Records mirror the JSON shape served by the Metra GTFS API (snake_case
// GTFS-realtime field names). The protobuf decoder in internal/metra produces
// the same structs.

type TranslatedString struct {
	Translation []Translation `json:"translation"`
}

type Translation struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// Text returns the first translation, which is what the UI displays.
func (t *TranslatedString) Text() string {
	if t == nil || len(t.Translation) == 0 {
		return ""
	}
	return t.Translation[0].Text
}

type TimeRange struct {
	Start Timestamp `json:"start,omitempty"`
	End   Timestamp `json:"end,omitempty"`
}

type EntitySelector struct {
	AgencyID string          `json:"agency_id,omitempty"`
	RouteID  string          `json:"route_id,omitempty"`
	StopID   string          `json:"stop_id,omitempty"`
	Trip     *TripDescriptor `json:"trip,omitempty"`
}

type AlertBody struct {
	ActivePeriod    []TimeRange       `json:"active_period"`
	InformedEntity  []EntitySelector  `json:"informed_entity"`
	Cause           int32             `json:"cause,omitempty"`
	Effect          int32             `json:"effect,omitempty"`
	URL             *TranslatedString `json:"url,omitempty"`
	HeaderText      *TranslatedString `json:"header_text,omitempty"`
	DescriptionText *TranslatedString `json:"description_text,omitempty"`
}

type Alert struct {
	ID        string    `json:"id"`
	IsDeleted bool      `json:"is_deleted"`
	Alert     AlertBody `json:"alert"`
}

func (a Alert) Header() string      { return a.Alert.HeaderText.Text() }
func (a Alert) Description() string { return a.Alert.DescriptionText.Text() }

// AffectsRoute reports whether any informed entity names routeID.
func (a Alert) AffectsRoute(routeID string) bool {
	for _, ie := range a.Alert.InformedEntity {
		if ie.RouteID == routeID {
			return true
		}
	}
	return false
}

type TripDescriptor struct {
	TripID               string `json:"trip_id,omitempty"`
	RouteID              string `json:"route_id,omitempty"`
	DirectionID          *int32 `json:"direction_id,omitempty"`
	StartTime            string `json:"start_time,omitempty"`
	StartDate            string `json:"start_date,omitempty"`
	ScheduleRelationship int32  `json:"schedule_relationship,omitempty"`
}

type VehicleDescriptor struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label,omitempty"`
}

type Position struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Bearing   *float64 `json:"bearing,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

type VehicleBody struct {
	Trip          *TripDescriptor    `json:"trip,omitempty"`
	Vehicle       *VehicleDescriptor `json:"vehicle,omitempty"`
	Position      *Position          `json:"position,omitempty"`
	CurrentStatus int32              `json:"current_status,omitempty"`
	StopID        string             `json:"stop_id,omitempty"`
	Timestamp     Timestamp          `json:"timestamp,omitempty"`
}

// VehiclePosition is the wrapper record returned by the positions endpoint.
type VehiclePosition struct {
	ID        string      `json:"id"`
	IsDeleted bool        `json:"is_deleted"`
	Vehicle   VehicleBody `json:"vehicle"`
}

// RouteID returns the route of the position's trip; ok is false when the
// position carries no trip reference.
func (v VehiclePosition) RouteID() (string, bool) {
	if v.Vehicle.Trip == nil {
		return "", false
	}
	return v.Vehicle.Trip.RouteID, true
}

type StopTimeEvent struct {
	Delay       int32     `json:"delay"`
	Time        Timestamp `json:"time,omitempty"`
	Uncertainty int32     `json:"uncertainty,omitempty"`
}

type StopTimeUpdate struct {
	StopSequence         uint32         `json:"stop_sequence"`
	StopID               string         `json:"stop_id"`
	Arrival              *StopTimeEvent `json:"arrival,omitempty"`
	Departure            *StopTimeEvent `json:"departure,omitempty"`
	ScheduleRelationship int32          `json:"schedule_relationship,omitempty"`
}

type TripUpdateBody struct {
	Trip           TripDescriptor     `json:"trip"`
	Vehicle        *VehicleDescriptor `json:"vehicle,omitempty"`
	StopTimeUpdate []StopTimeUpdate   `json:"stop_time_update"`
	Timestamp      Timestamp          `json:"timestamp,omitempty"`
	Delay          *int32             `json:"delay,omitempty"`
}

// TripUpdate is the wrapper record returned by the tripUpdates endpoint.
type TripUpdate struct {
	ID         string         `json:"id"`
	IsDeleted  bool           `json:"is_deleted"`
	TripUpdate TripUpdateBody `json:"trip_update"`
}

func (t TripUpdate) RouteID() string { return t.TripUpdate.Trip.RouteID }

// ServesStop reports whether any stop-time update references stopID.
func (t TripUpdate) ServesStop(stopID string) bool {
	for _, stu := range t.TripUpdate.StopTimeUpdate {
		if stu.StopID == stopID {
			return true
		}
	}
	return false
}
