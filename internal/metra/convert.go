package metra

import (
	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"chicommute/internal/transit"
)

// Conversions from the GTFS-realtime protobuf messages to the records the API
// serves as JSON. Unset optional fields map to zero values.

func alertsFromFeed(fm *gtfsrtpb.FeedMessage) []transit.Alert {
	out := make([]transit.Alert, 0, len(fm.GetEntity()))
	for _, e := range fm.GetEntity() {
		a := e.GetAlert()
		if a == nil {
			continue
		}
		rec := transit.Alert{ID: e.GetId(), IsDeleted: e.GetIsDeleted()}
		for _, tr := range a.GetActivePeriod() {
			rec.Alert.ActivePeriod = append(rec.Alert.ActivePeriod, transit.TimeRange{
				Start: transit.Timestamp(tr.GetStart()),
				End:   transit.Timestamp(tr.GetEnd()),
			})
		}
		for _, ie := range a.GetInformedEntity() {
			rec.Alert.InformedEntity = append(rec.Alert.InformedEntity, transit.EntitySelector{
				AgencyID: ie.GetAgencyId(),
				RouteID:  ie.GetRouteId(),
				StopID:   ie.GetStopId(),
				Trip:     tripDescriptor(ie.GetTrip()),
			})
		}
		if a.Cause != nil {
			rec.Alert.Cause = int32(a.GetCause())
		}
		if a.Effect != nil {
			rec.Alert.Effect = int32(a.GetEffect())
		}
		rec.Alert.URL = translated(a.GetUrl())
		rec.Alert.HeaderText = translated(a.GetHeaderText())
		rec.Alert.DescriptionText = translated(a.GetDescriptionText())
		out = append(out, rec)
	}
	return out
}

func positionsFromFeed(fm *gtfsrtpb.FeedMessage) []transit.VehiclePosition {
	out := make([]transit.VehiclePosition, 0, len(fm.GetEntity()))
	for _, e := range fm.GetEntity() {
		v := e.GetVehicle()
		if v == nil {
			continue
		}
		rec := transit.VehiclePosition{ID: e.GetId(), IsDeleted: e.GetIsDeleted()}
		rec.Vehicle.Trip = tripDescriptor(v.GetTrip())
		rec.Vehicle.Vehicle = vehicleDescriptor(v.GetVehicle())
		if p := v.GetPosition(); p != nil {
			pos := &transit.Position{
				Latitude:  float64(p.GetLatitude()),
				Longitude: float64(p.GetLongitude()),
			}
			if p.Bearing != nil {
				b := float64(p.GetBearing())
				pos.Bearing = &b
			}
			if p.Speed != nil {
				s := float64(p.GetSpeed())
				pos.Speed = &s
			}
			rec.Vehicle.Position = pos
		}
		if v.CurrentStatus != nil {
			rec.Vehicle.CurrentStatus = int32(v.GetCurrentStatus())
		}
		rec.Vehicle.StopID = v.GetStopId()
		rec.Vehicle.Timestamp = transit.Timestamp(v.GetTimestamp())
		out = append(out, rec)
	}
	return out
}

func tripUpdatesFromFeed(fm *gtfsrtpb.FeedMessage) []transit.TripUpdate {
	out := make([]transit.TripUpdate, 0, len(fm.GetEntity()))
	for _, e := range fm.GetEntity() {
		tu := e.GetTripUpdate()
		if tu == nil {
			continue
		}
		rec := transit.TripUpdate{ID: e.GetId(), IsDeleted: e.GetIsDeleted()}
		if td := tripDescriptor(tu.GetTrip()); td != nil {
			rec.TripUpdate.Trip = *td
		}
		rec.TripUpdate.Vehicle = vehicleDescriptor(tu.GetVehicle())
		rec.TripUpdate.StopTimeUpdate = make([]transit.StopTimeUpdate, 0, len(tu.GetStopTimeUpdate()))
		for _, stu := range tu.GetStopTimeUpdate() {
			u := transit.StopTimeUpdate{
				StopSequence: stu.GetStopSequence(),
				StopID:       stu.GetStopId(),
				Arrival:      stopTimeEvent(stu.GetArrival()),
				Departure:    stopTimeEvent(stu.GetDeparture()),
			}
			if stu.ScheduleRelationship != nil {
				u.ScheduleRelationship = int32(stu.GetScheduleRelationship())
			}
			rec.TripUpdate.StopTimeUpdate = append(rec.TripUpdate.StopTimeUpdate, u)
		}
		rec.TripUpdate.Timestamp = transit.Timestamp(tu.GetTimestamp())
		if tu.Delay != nil {
			d := tu.GetDelay()
			rec.TripUpdate.Delay = &d
		}
		out = append(out, rec)
	}
	return out
}

func tripDescriptor(td *gtfsrtpb.TripDescriptor) *transit.TripDescriptor {
	if td == nil {
		return nil
	}
	out := &transit.TripDescriptor{
		TripID:    td.GetTripId(),
		RouteID:   td.GetRouteId(),
		StartTime: td.GetStartTime(),
		StartDate: td.GetStartDate(),
	}
	if td.DirectionId != nil {
		d := int32(td.GetDirectionId())
		out.DirectionID = &d
	}
	if td.ScheduleRelationship != nil {
		out.ScheduleRelationship = int32(td.GetScheduleRelationship())
	}
	return out
}

func vehicleDescriptor(vd *gtfsrtpb.VehicleDescriptor) *transit.VehicleDescriptor {
	if vd == nil {
		return nil
	}
	return &transit.VehicleDescriptor{ID: vd.GetId(), Label: vd.GetLabel()}
}

func stopTimeEvent(ev *gtfsrtpb.TripUpdate_StopTimeEvent) *transit.StopTimeEvent {
	if ev == nil {
		return nil
	}
	return &transit.StopTimeEvent{
		Delay:       ev.GetDelay(),
		Time:        transit.Timestamp(ev.GetTime()),
		Uncertainty: ev.GetUncertainty(),
	}
}

func translated(ts *gtfsrtpb.TranslatedString) *transit.TranslatedString {
	if ts == nil {
		return nil
	}
	out := &transit.TranslatedString{Translation: make([]transit.Translation, 0, len(ts.GetTranslation()))}
	for _, tr := range ts.GetTranslation() {
		out.Translation = append(out.Translation, transit.Translation{
			Text:     tr.GetText(),
			Language: tr.GetLanguage(),
		})
	}
	return out
}
