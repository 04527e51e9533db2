package transit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampUnmarshal(t *testing.T) {
	cases := []struct {
		in   string
		want Timestamp
	}{
		{`1717423200`, 1717423200},
		{`"1717423200"`, 1717423200},
		{`"2024-06-03T14:00:00Z"`, 1717423200},
		{`{"low":"2024-06-03T14:00:00Z","high":0,"unsigned":true}`, 1717423200},
		{`{"low":1717423200,"high":0}`, 1717423200},
		{`{"low":-1,"high":0,"unsigned":true}`, 4294967295},
		{`{"low":-2147483648,"high":0}`, 2147483648},
		{`null`, 0},
		{`""`, 0},
	}
	for _, c := range cases {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(c.in), &ts), c.in)
		assert.Equal(t, c.want, ts, c.in)
	}
}

func TestTimestampUnmarshalRejectsGarbage(t *testing.T) {
	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestDecodeMetraAlert(t *testing.T) {
	body := `[{"id":"a1","is_deleted":false,"alert":{"active_period":[{"start":{"low":"2024-06-03T14:00:00Z"}}],
		"informed_entity":[{"agency_id":"METRA","route_id":"BNSF"}],
		"header_text":{"translation":[{"text":"Delays on BNSF","language":"en"},{"text":"Retrasos","language":"es"}]},
		"description_text":{"translation":[{"text":"Signal problems near Aurora"}]}}}]`
	var alerts []Alert
	require.NoError(t, json.Unmarshal([]byte(body), &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, "Delays on BNSF", alerts[0].Header())
	assert.Equal(t, "Signal problems near Aurora", alerts[0].Description())
	assert.True(t, alerts[0].AffectsRoute("BNSF"))
	assert.False(t, alerts[0].AffectsRoute("UP-N"))
	assert.Equal(t, Timestamp(1717423200), alerts[0].Alert.ActivePeriod[0].Start)
}

func TestVehiclePositionWithoutTrip(t *testing.T) {
	var vp VehiclePosition
	require.NoError(t, json.Unmarshal([]byte(`{"id":"v1","vehicle":{"position":{"latitude":41.8,"longitude":-87.6}}}`), &vp))
	_, ok := vp.RouteID()
	assert.False(t, ok)
}
