package metra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"chicommute/internal/transit"
)

const DefaultBaseURL = "https://gtfsapi.metrarail.com/gtfs"

const (
	EndpointAlerts      = "alerts"
	EndpointTripUpdates = "tripUpdates"
	EndpointPositions   = "positions"
)

// ValidEndpoint returns ErrUnknownEndpoint for anything but the three
// realtime feeds.
func ValidEndpoint(name string) error {
	switch name {
	case EndpointAlerts, EndpointTripUpdates, EndpointPositions:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
}

// Client reads the Metra GTFS-realtime API. Responses are accepted either as
// the API's JSON rendering or as raw GTFS-realtime protobuf.
type Client struct {
	base   string
	key    string
	secret string
	http   *http.Client
}

func NewClient(base, key, secret string, timeout time.Duration) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		key:    key,
		secret: secret,
		http:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) FetchAlerts(ctx context.Context) ([]transit.Alert, error) {
	var out []transit.Alert
	err := c.fetch(ctx, EndpointAlerts, &out, func(fm *gtfsrtpb.FeedMessage) {
		out = alertsFromFeed(fm)
	})
	return out, err
}

func (c *Client) FetchPositions(ctx context.Context) ([]transit.VehiclePosition, error) {
	var out []transit.VehiclePosition
	err := c.fetch(ctx, EndpointPositions, &out, func(fm *gtfsrtpb.FeedMessage) {
		out = positionsFromFeed(fm)
	})
	return out, err
}

func (c *Client) FetchTripUpdates(ctx context.Context) ([]transit.TripUpdate, error) {
	var out []transit.TripUpdate
	err := c.fetch(ctx, EndpointTripUpdates, &out, func(fm *gtfsrtpb.FeedMessage) {
		out = tripUpdatesFromFeed(fm)
	})
	return out, err
}

func (c *Client) fetch(ctx context.Context, endpoint string, jsonDst any, fromProto func(*gtfsrtpb.FeedMessage)) error {
	if err := ValidEndpoint(endpoint); err != nil {
		return err
	}
	if c.key == "" || c.secret == "" {
		return &FetchError{Endpoint: endpoint, Err: ErrMissingCredentials}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/"+endpoint, nil)
	if err != nil {
		return &FetchError{Endpoint: endpoint, Err: err}
	}
	req.SetBasicAuth(c.key, c.secret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &FetchError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("metra %s: status %d: %s", endpoint, resp.StatusCode, preview(body))
		return &FetchError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	switch kind := contentKind(resp.Header.Get("Content-Type")); kind {
	case kindJSON:
		if err := json.Unmarshal(body, jsonDst); err != nil {
			return &FetchError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode json: %w", err)}
		}
	case kindProtobuf:
		var fm gtfsrtpb.FeedMessage
		if err := proto.Unmarshal(body, &fm); err != nil {
			return &FetchError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode protobuf: %w", err)}
		}
		fromProto(&fm)
	default:
		return &FetchError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %q", ErrUnexpectedContentType, resp.Header.Get("Content-Type")),
		}
	}
	return nil
}

type bodyKind int

const (
	kindUnknown bodyKind = iota
	kindJSON
	kindProtobuf
)

func contentKind(header string) bodyKind {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return kindUnknown
	}
	switch {
	case mt == "application/json", strings.HasSuffix(mt, "+json"):
		return kindJSON
	case mt == "application/x-protobuf", mt == "application/protobuf",
		mt == "application/vnd.google.protobuf", mt == "application/octet-stream":
		return kindProtobuf
	}
	return kindUnknown
}

func preview(b []byte) string {
	if len(b) > 200 {
		return string(b[:200]) + "..."
	}
	return string(b)
}
