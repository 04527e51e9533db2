package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chicommute/internal/catalog"
)

func TestSelectLineResetsStations(t *testing.T) {
	cat := catalog.MustDefault()

	sel, _, err := Resolve(cat, "BNSF", "CUS", "AURORA")
	require.NoError(t, err)
	assert.Equal(t, Selection{Line: "BNSF", Boarding: "CUS", Destination: "AURORA"}, sel)

	next, stations, err := SelectLine(cat, "UP-N")
	require.NoError(t, err)
	assert.Equal(t, Selection{Line: "UP-N"}, next)
	require.NotEmpty(t, stations)
	assert.Equal(t, "OTC", stations[0].ID)
}

func TestSelectEmptyLineClearsEverything(t *testing.T) {
	sel, stations, err := SelectLine(catalog.MustDefault(), "")
	require.NoError(t, err)
	assert.Equal(t, Selection{}, sel)
	assert.NotNil(t, stations)
	assert.Empty(t, stations)
}

func TestSelectUnknownLine(t *testing.T) {
	_, _, err := SelectLine(catalog.MustDefault(), "NOPE")
	assert.ErrorIs(t, err, catalog.ErrUnknownLine)
}

func TestStationMustBelongToLine(t *testing.T) {
	cat := catalog.MustDefault()
	sel, _, err := SelectLine(cat, "UP-N")
	require.NoError(t, err)

	_, err = sel.WithBoarding(cat, "CUS")
	assert.ErrorIs(t, err, catalog.ErrUnknownStation)

	_, err = sel.WithDestination(cat, "AURORA")
	assert.ErrorIs(t, err, catalog.ErrUnknownStation)

	sel, err = sel.WithBoarding(cat, "OTC")
	require.NoError(t, err)
	assert.Equal(t, "OTC", sel.Boarding)
}

func TestStationRequiresLine(t *testing.T) {
	cat := catalog.MustDefault()
	_, err := Selection{}.WithBoarding(cat, "CUS")
	assert.ErrorIs(t, err, ErrNoLineSelected)

	// clearing is always allowed
	sel, err := Selection{}.WithDestination(cat, "")
	require.NoError(t, err)
	assert.Equal(t, Selection{}, sel)
}

func TestBoardingAndDestinationAreIndependent(t *testing.T) {
	cat := catalog.MustDefault()
	sel, _, err := Resolve(cat, "BNSF", "", "AURORA")
	require.NoError(t, err)
	assert.Empty(t, sel.Boarding)
	assert.Equal(t, "AURORA", sel.Destination)

	sel, err = sel.WithBoarding(cat, "CUS")
	require.NoError(t, err)
	assert.Equal(t, "AURORA", sel.Destination)
}
