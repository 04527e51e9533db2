package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chicommute/internal/auth"
	"chicommute/internal/catalog"
	"chicommute/internal/cta"
	"chicommute/internal/feed"
	"chicommute/internal/metrics"
	"chicommute/internal/schedule"
	"chicommute/internal/suggest"
	"chicommute/internal/transit"
)

type stubFetcher struct {
	mu   sync.Mutex
	snap feed.Snapshot
	err  error
}

func (f *stubFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *stubFetcher) FetchAlerts(context.Context) ([]transit.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.Alerts, f.err
}

func (f *stubFetcher) FetchPositions(context.Context) ([]transit.VehiclePosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.Positions, nil
}

func (f *stubFetcher) FetchTripUpdates(ctx context.Context) ([]transit.TripUpdate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.TripUpdates, nil
}

type failingStore struct{ *schedule.MemoryStore }

func (failingStore) Save(context.Context, string, []schedule.Item) error {
	return errors.New("database unavailable")
}

// unreadableStore fails every load until healed.
type unreadableStore struct {
	*schedule.MemoryStore
	mu     sync.Mutex
	broken bool
}

func (s *unreadableStore) Load(ctx context.Context, userID string) ([]schedule.Item, error) {
	s.mu.Lock()
	broken := s.broken
	s.mu.Unlock()
	if broken {
		return nil, errors.New("database unavailable")
	}
	return s.MemoryStore.Load(ctx, userID)
}

func (s *unreadableStore) heal() {
	s.mu.Lock()
	s.broken = false
	s.mu.Unlock()
}

func tripUpdate(id, route string, stops ...string) transit.TripUpdate {
	var tu transit.TripUpdate
	tu.ID = id
	tu.TripUpdate.Trip.RouteID = route
	for i, s := range stops {
		tu.TripUpdate.StopTimeUpdate = append(tu.TripUpdate.StopTimeUpdate, transit.StopTimeUpdate{StopSequence: uint32(i + 1), StopID: s})
	}
	return tu
}

func fixtureSnapshot() feed.Snapshot {
	var bnsfAlert, upnAlert transit.Alert
	bnsfAlert.ID = "a1"
	bnsfAlert.Alert.InformedEntity = []transit.EntitySelector{{RouteID: "BNSF"}}
	upnAlert.ID = "a2"
	upnAlert.Alert.InformedEntity = []transit.EntitySelector{{RouteID: "UP-N"}}

	var pos transit.VehiclePosition
	pos.ID = "p1"
	pos.Vehicle.Trip = &transit.TripDescriptor{RouteID: "BNSF"}

	return feed.Snapshot{
		Alerts:    []transit.Alert{bnsfAlert, upnAlert},
		Positions: []transit.VehiclePosition{pos},
		TripUpdates: []transit.TripUpdate{
			tripUpdate("t1", "BNSF", "AURORA", "HALSTED", "CUS"),
			tripUpdate("t2", "BNSF", "AURORA", "NAPERVILLE"),
			tripUpdate("t3", "UP-N", "KENOSHA", "OTC"),
		},
	}
}

type fixture struct {
	srv     *Server
	h       http.Handler
	fetcher *stubFetcher
}

func newFixture(t *testing.T, store schedule.Store) *fixture {
	t.Helper()
	m := metrics.NewCollector(time.Minute)
	fetcher := &stubFetcher{snap: fixtureSnapshot()}
	poller := feed.NewPoller(fetcher, nil, time.Minute, feed.DiscardOnError, m)
	require.NoError(t, poller.Refresh(context.Background()))

	if store == nil {
		store = schedule.NewMemoryStore()
	}
	sessions := auth.NewSessions(auth.NewMemoryStore(), time.Hour, m)
	book := schedule.NewBook(store, m)
	t.Cleanup(book.Follow(sessions))

	srv := &Server{
		Catalog:     catalog.MustDefault(),
		Feed:        poller,
		Sessions:    sessions,
		Schedules:   book,
		Suggestions: suggest.NewService(suggest.Generator{}, nil, m),
		Metrics:     m,
	}
	return &fixture{srv: srv, h: srv.Handler(), fetcher: fetcher}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) signIn(t *testing.T, userID string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/session", "", auth.User{ID: userID, DisplayName: "Commuter"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "feed")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflight(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodOptions, "/api/schedules", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestLinesAndStations(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/lines", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lines := decode[struct {
		Lines []catalog.Line `json:"lines"`
	}](t, rec)
	assert.NotEmpty(t, lines.Lines)

	rec = f.do(t, http.MethodGet, "/api/lines?station=CUS", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lines = decode[struct {
		Lines []catalog.Line `json:"lines"`
	}](t, rec)
	var ids []string
	for _, l := range lines.Lines {
		ids = append(ids, l.ID)
	}
	assert.Contains(t, ids, "BNSF")
	assert.Contains(t, ids, "MD-W")
	assert.NotContains(t, ids, "UP-N")

	rec = f.do(t, http.MethodGet, "/api/lines/BNSF/stations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stations := decode[struct {
		Stations []catalog.Station `json:"stations"`
	}](t, rec)
	assert.Equal(t, "CUS", stations.Stations[0].ID)

	rec = f.do(t, http.MethodGet, "/api/lines/NOPE/stations", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Error, "unknown line")
}

func TestFeedEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/metra/feed/alerts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]transit.Alert](t, rec), 2)

	rec = f.do(t, http.MethodGet, "/api/metra/feed/tripUpdates", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]transit.TripUpdate](t, rec), 3)

	rec = f.do(t, http.MethodGet, "/api/metra/feed/schedule", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedReportsFailedTick(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.setErr(errors.New("upstream down"))

	rec := f.do(t, http.MethodPost, "/api/metra/refresh", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Error, "upstream down")

	rec = f.do(t, http.MethodGet, "/api/metra/feed/positions", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	f.fetcher.setErr(nil)
	rec = f.do(t, http.MethodPost, "/api/metra/refresh", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[feed.Status](t, rec).LastError)
}

func TestRefreshOutlivesClient(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/metra/refresh", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decode[feed.Status](t, rec).LastError)
	assert.NotEmpty(t, f.srv.Feed.Snapshot().Alerts)
}

func TestView(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/metra/view?line=BNSF&boarding=HALSTED", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[viewResponse](t, rec)
	assert.Equal(t, feed.Selection{Line: "BNSF", Boarding: "HALSTED"}, v.Selection)
	assert.NotEmpty(t, v.Stations)
	require.Len(t, v.Alerts, 1)
	assert.Equal(t, "a1", v.Alerts[0].ID)
	assert.Len(t, v.Positions, 1)
	require.Len(t, v.TripUpdates, 1)
	assert.Equal(t, "t1", v.TripUpdates[0].ID)

	rec = f.do(t, http.MethodGet, "/api/metra/view", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v = decode[viewResponse](t, rec)
	assert.Len(t, v.Alerts, 2)
	assert.Empty(t, v.TripUpdates)

	rec = f.do(t, http.MethodGet, "/api/metra/view?line=BNSF&boarding=OTC", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/metra/view?boarding=CUS", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/session", "", auth.User{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	token := f.signIn(t, "user-1")
	rec = f.do(t, http.MethodGet, "/api/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", decode[sessionResponse](t, rec).User.ID)

	rec = f.do(t, http.MethodDelete, "/api/session", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/session", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func validItem() schedule.Item {
	return schedule.Item{
		Name:      "Morning class",
		Days:      []schedule.Day{schedule.Wed, schedule.Mon},
		StartTime: "09:00",
		EndTime:   "10:15",
		Location:  "UIC East Campus",
		Type:      schedule.TypeClass,
	}
}

func TestScheduleCRUD(t *testing.T) {
	f := newFixture(t, nil)
	token := f.signIn(t, "user-1")

	rec := f.do(t, http.MethodGet, "/api/schedules", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/schedules", token, validItem())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[itemResponse](t, rec)
	require.NotNil(t, created.Item)
	require.NotEmpty(t, created.Item.ID)
	assert.Equal(t, []schedule.Day{schedule.Mon, schedule.Wed}, created.Item.Days)
	assert.Empty(t, created.Warning)

	upd := validItem()
	upd.Name = "Evening class"
	rec = f.do(t, http.MethodPut, "/api/schedules/"+created.Item.ID, token, upd)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/schedules", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[schedulesResponse](t, rec)
	require.Len(t, list.Schedules, 1)
	assert.Equal(t, "Evening class", list.Schedules[0].Name)

	rec = f.do(t, http.MethodDelete, "/api/schedules/"+created.Item.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/schedules/"+created.Item.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScheduleValidationErrors(t *testing.T) {
	f := newFixture(t, nil)
	token := f.signIn(t, "user-1")

	bad := validItem()
	bad.Name = "x"
	bad.EndTime = "08:00"
	rec := f.do(t, http.MethodPost, "/api/schedules", token, bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Contains(t, body.Fields, "name")
	assert.Contains(t, body.Fields, "endTime")

	req := httptest.NewRequest(http.MethodPost, "/api/schedules", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleSaveFailureIsAWarning(t *testing.T) {
	f := newFixture(t, failingStore{schedule.NewMemoryStore()})
	token := f.signIn(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/schedules", token, validItem())
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[itemResponse](t, rec)
	assert.Equal(t, saveWarning, resp.Warning)

	rec = f.do(t, http.MethodGet, "/api/schedules", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[schedulesResponse](t, rec).Schedules, 1)
}

func TestScheduleLoadFailureIsAWarning(t *testing.T) {
	store := &unreadableStore{MemoryStore: schedule.NewMemoryStore(), broken: true}
	kept := validItem()
	kept.ID = "kept"
	require.NoError(t, store.MemoryStore.Save(context.Background(), "user-1", []schedule.Item{kept}))
	f := newFixture(t, store)
	token := f.signIn(t, "user-1")

	rec := f.do(t, http.MethodGet, "/api/schedules", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[schedulesResponse](t, rec)
	assert.Equal(t, loadWarning, list.Warning)
	assert.Empty(t, list.Schedules)

	rec = f.do(t, http.MethodPost, "/api/schedules", token, validItem())
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, loadWarning, decode[itemResponse](t, rec).Warning)

	rec = f.do(t, http.MethodPost, "/api/suggestions", token, map[string]any{
		"currentDateTime": "2025-03-03T08:00:00-06:00",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, loadWarning, decode[suggestionsResponse](t, rec).Warning)

	stored, err := store.MemoryStore.Load(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "kept", stored[0].ID)

	store.heal()
	rec = f.do(t, http.MethodGet, "/api/schedules", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[schedulesResponse](t, rec)
	assert.Empty(t, list.Warning)
	require.Len(t, list.Schedules, 2)
	assert.Equal(t, "kept", list.Schedules[0].ID)
}

func TestSuggestionsUseSavedSchedule(t *testing.T) {
	f := newFixture(t, nil)
	token := f.signIn(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/suggestions", "", suggest.Input{CurrentDateTime: "2025-03-03T08:00:00-06:00"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/schedules", token, validItem())
	require.Equal(t, http.StatusCreated, rec.Code)

	// 2025-03-03 is a Monday.
	rec = f.do(t, http.MethodPost, "/api/suggestions", token, map[string]any{
		"currentDateTime":     "2025-03-03T08:00:00-06:00",
		"manualOriginAddress": "1200 W Harrison St",
		"preferences":         map[string]any{"preferredMode": "train"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[suggest.Result](t, rec)
	assert.Equal(t, suggest.SourceFallback, res.Source)
	assert.Equal(t, suggest.ReasonNoRemote, res.FallbackReason)
	require.Len(t, res.DailySuggestions, 1)
	assert.Equal(t, "Monday", res.DailySuggestions[0].Day)
	assert.Equal(t, suggest.ModeTrain, res.DailySuggestions[0].Events[0].Suggestion.Steps[1].Mode)
}

func TestSuggestionsRejectBadInput(t *testing.T) {
	f := newFixture(t, nil)
	token := f.signIn(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/suggestions", token, map[string]any{"currentDateTime": "yesterday", "schedule": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/suggestions", token, map[string]any{
		"currentDateTime": "2025-03-03T08:00:00-06:00",
		"schedule":        []any{},
		"preferences":     map[string]any{"maxTransfers": 9},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decode[errorBody](t, rec).Fields)
}

func TestCTATrain(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ctatt":{"errCd":"0","eta":[{"rn":"121","rt":"Blue","destNm":"O'Hare","arrT":"2024-05-29T17:04:00","isApp":"1","isSch":"0","isDly":"0"}]}}`))
	}))
	defer upstream.Close()

	f := newFixture(t, nil)
	f.srv.CTA = cta.NewClient(cta.Options{TrainBaseURL: upstream.URL, TrainAPIKey: "k", Location: time.UTC}, nil)
	f.h = f.srv.Handler()

	rec := f.do(t, http.MethodGet, "/api/cta/train?mapid=40380", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := decode[cta.ArrivalBoard](t, rec)
	require.Len(t, board.Arrivals, 1)
	assert.Equal(t, "5:04 PM", board.Arrivals[0].ArrivalTime)

	rec = f.do(t, http.MethodGet, "/api/cta/train?mapid=123", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/cta/bus/routes", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/cta/bus/patterns", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCTABusPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("stpid") == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"bustime-response":{"prd":[{"rt":"22","prdctdn":"4"}]}}`))
	}))
	defer upstream.Close()

	f := newFixture(t, nil)
	f.srv.CTA = cta.NewClient(cta.Options{BusBaseURL: upstream.URL, BusAPIKey: "k"}, nil)
	f.h = f.srv.Handler()

	rec := f.do(t, http.MethodGet, "/api/cta/bus/predictions?rt=22&stop_id=1842", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bustime-response":{"prd":[{"rt":"22","prdctdn":"4"}]}}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/cta/bus/predictions?rt=22", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCTANotConfigured(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/cta/train?mapid=40380", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chicommute_feed_poll_ticks_total")
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decode[errorBody](t, rec).Error)
}
