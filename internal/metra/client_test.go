package metra

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

const alertsJSON = `[
  {
    "id": "ALERT-1",
    "is_deleted": false,
    "alert": {
      "active_period": [{"start": {"low": 1717000000, "high": 0, "unsigned": true}}],
      "informed_entity": [{"agency_id": "METRA", "route_id": "BNSF"}],
      "header_text": {"translation": [{"text": "BNSF delays", "language": "en"}]},
      "description_text": {"translation": [{"text": "Trains running 10 minutes late"}]}
    }
  }
]`

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "key", "secret", time.Second)
}

func TestFetchAlertsJSON(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alerts", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(alertsJSON))
	})

	alerts, err := c.FetchAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "ALERT-1", alerts[0].ID)
	assert.Equal(t, "BNSF delays", alerts[0].Header())
	assert.True(t, alerts[0].AffectsRoute("BNSF"))
	assert.Equal(t, int64(1717000000), alerts[0].Alert.ActivePeriod[0].Start.Time().Unix())
}

func TestFetchTripUpdatesProtobuf(t *testing.T) {
	feed := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1717000000),
		},
		Entity: []*gtfsrtpb.FeedEntity{
			{
				Id: proto.String("TU-1"),
				TripUpdate: &gtfsrtpb.TripUpdate{
					Trip: &gtfsrtpb.TripDescriptor{
						TripId:      proto.String("BNSF_BN1200_V1_A"),
						RouteId:     proto.String("BNSF"),
						DirectionId: proto.Uint32(1),
					},
					StopTimeUpdate: []*gtfsrtpb.TripUpdate_StopTimeUpdate{
						{
							StopSequence: proto.Uint32(1),
							StopId:       proto.String("AURORA"),
							Departure:    &gtfsrtpb.TripUpdate_StopTimeEvent{Delay: proto.Int32(60), Time: proto.Int64(1717000600)},
						},
						{
							StopSequence: proto.Uint32(11),
							StopId:       proto.String("CUS"),
							Arrival:      &gtfsrtpb.TripUpdate_StopTimeEvent{Time: proto.Int64(1717004000)},
						},
					},
				},
			},
			{
				Id:      proto.String("V-1"),
				Vehicle: &gtfsrtpb.VehiclePosition{},
			},
		},
	}
	data, err := proto.Marshal(feed)
	require.NoError(t, err)

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(data)
	})

	updates, err := c.FetchTripUpdates(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	tu := updates[0]
	assert.Equal(t, "TU-1", tu.ID)
	assert.Equal(t, "BNSF", tu.RouteID())
	require.NotNil(t, tu.TripUpdate.Trip.DirectionID)
	assert.Equal(t, int32(1), *tu.TripUpdate.Trip.DirectionID)
	assert.True(t, tu.ServesStop("CUS"))
	require.Len(t, tu.TripUpdate.StopTimeUpdate, 2)
	assert.Nil(t, tu.TripUpdate.StopTimeUpdate[0].Arrival)
	assert.Equal(t, int32(60), tu.TripUpdate.StopTimeUpdate[0].Departure.Delay)
}

func TestFetchPositionsProtobuf(t *testing.T) {
	feed := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfsrtpb.FeedEntity{
			{
				Id: proto.String("V-1"),
				Vehicle: &gtfsrtpb.VehiclePosition{
					Trip:     &gtfsrtpb.TripDescriptor{RouteId: proto.String("UP-N")},
					Vehicle:  &gtfsrtpb.VehicleDescriptor{Id: proto.String("8501"), Label: proto.String("321")},
					Position: &gtfsrtpb.Position{Latitude: proto.Float32(41.9), Longitude: proto.Float32(-87.6), Bearing: proto.Float32(90)},
				},
			},
			{
				Id:      proto.String("V-2"),
				Vehicle: &gtfsrtpb.VehiclePosition{Vehicle: &gtfsrtpb.VehicleDescriptor{Id: proto.String("8502")}},
			},
		},
	}
	data, err := proto.Marshal(feed)
	require.NoError(t, err)

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	})

	positions, err := c.FetchPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	route, ok := positions[0].RouteID()
	assert.True(t, ok)
	assert.Equal(t, "UP-N", route)
	assert.Equal(t, "321", positions[0].Vehicle.Vehicle.Label)
	require.NotNil(t, positions[0].Vehicle.Position.Bearing)
	assert.Nil(t, positions[0].Vehicle.Position.Speed)
	assert.InDelta(t, 41.9, positions[0].Vehicle.Position.Latitude, 1e-4)

	_, ok = positions[1].RouteID()
	assert.False(t, ok)
}

func TestFetchNon200(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad credentials"}`))
	})

	_, err := c.FetchPositions(context.Background())
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, EndpointPositions, fe.Endpoint)
	assert.Equal(t, http.StatusUnauthorized, fe.StatusCode)
}

func TestFetchUnexpectedContentType(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})

	_, err := c.FetchAlerts(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedContentType)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusOK, fe.StatusCode)
}

func TestFetchInvalidJSON(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": `))
	})

	_, err := c.FetchTripUpdates(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, err.Error(), "decode json")
}

func TestFetchWithoutCredentials(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "", "", time.Second)
	_, err := c.FetchAlerts(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestValidEndpoint(t *testing.T) {
	for _, ep := range []string{"alerts", "tripUpdates", "positions"} {
		assert.NoError(t, ValidEndpoint(ep))
	}
	assert.ErrorIs(t, ValidEndpoint("schedule"), ErrUnknownEndpoint)
	assert.ErrorIs(t, ValidEndpoint("TripUpdates"), ErrUnknownEndpoint)
}
