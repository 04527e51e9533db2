package cta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluele/gcache"

	"chicommute/internal/metrics"
)

const (
	DefaultBusBaseURL   = "http://www.ctabustracker.com/bustime/api/v2"
	DefaultTrainBaseURL = "http://lapi.transitchicago.com/api/1.0"

	cacheSize = 1024
)

type Options struct {
	BusBaseURL   string
	TrainBaseURL string
	BusAPIKey    string
	TrainAPIKey  string
	CacheTTL     time.Duration
	Timeout      time.Duration
	// Location is used to read Train Tracker timestamps, which carry no offset.
	Location *time.Location
}

// Client proxies the CTA Bus Tracker and Train Tracker APIs. Successful
// responses are cached per request for CacheTTL.
type Client struct {
	opts    Options
	http    *http.Client
	cache   gcache.Cache
	metrics *metrics.Collector
}

func NewClient(opts Options, m *metrics.Collector) *Client {
	if opts.BusBaseURL == "" {
		opts.BusBaseURL = DefaultBusBaseURL
	}
	if opts.TrainBaseURL == "" {
		opts.TrainBaseURL = DefaultTrainBaseURL
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	opts.BusBaseURL = strings.TrimRight(opts.BusBaseURL, "/")
	opts.TrainBaseURL = strings.TrimRight(opts.TrainBaseURL, "/")
	return &Client{
		opts:    opts,
		http:    &http.Client{Timeout: opts.Timeout},
		cache:   gcache.New(cacheSize).LRU().Expiration(opts.CacheTTL).Build(),
		metrics: m,
	}
}

func (c *Client) BusRoutes(ctx context.Context) (json.RawMessage, error) {
	return c.bus(ctx, "getroutes", url.Values{})
}

func (c *Client) BusDirections(ctx context.Context, rt string) (json.RawMessage, error) {
	if rt == "" {
		return nil, fmt.Errorf("%w: rt", ErrMissingParam)
	}
	return c.bus(ctx, "getdirections", url.Values{"rt": {rt}})
}

// BusStops lists the stops of rt in one direction. An empty direction means
// Northbound.
func (c *Client) BusStops(ctx context.Context, rt, direction string) (json.RawMessage, error) {
	if rt == "" {
		return nil, fmt.Errorf("%w: rt", ErrMissingParam)
	}
	if direction == "" {
		direction = "Northbound"
	}
	return c.bus(ctx, "getstops", url.Values{"rt": {rt}, "dir": {direction}})
}

func (c *Client) BusPredictions(ctx context.Context, rt, stopID string) (json.RawMessage, error) {
	if stopID == "" {
		return nil, fmt.Errorf("%w: stop_id", ErrMissingParam)
	}
	q := url.Values{"stpid": {stopID}}
	if rt != "" {
		q.Set("rt", rt)
	}
	return c.bus(ctx, "getpredictions", q)
}

func (c *Client) BusVehicles(ctx context.Context, rt string) (json.RawMessage, error) {
	if rt == "" {
		return nil, fmt.Errorf("%w: rt", ErrMissingParam)
	}
	return c.bus(ctx, "getvehicles", url.Values{"rt": {rt}})
}

func (c *Client) bus(ctx context.Context, call string, q url.Values) (json.RawMessage, error) {
	if c.opts.BusAPIKey == "" {
		return nil, &FetchError{Call: call, Err: ErrMissingAPIKey}
	}
	q.Set("format", "json")
	body, err := c.get(ctx, call, c.opts.BusBaseURL+"/"+call, q, c.opts.BusAPIKey)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// get performs a cached GET. The API key is appended after the cache key is
// computed so it never ends up in logs.
func (c *Client) get(ctx context.Context, call, base string, q url.Values, key string) ([]byte, error) {
	cacheKey := base + "?" + q.Encode()
	if v, err := c.cache.Get(cacheKey); err == nil {
		c.count("hit")
		return v.([]byte), nil
	}

	withKey := url.Values{}
	for k, vs := range q {
		withKey[k] = vs
	}
	withKey.Set("key", key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+withKey.Encode(), nil)
	if err != nil {
		c.count("error")
		return nil, &FetchError{Call: call, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.count("error")
		return nil, &FetchError{Call: call, Err: scrubKey(err, key)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.count("error")
		return nil, &FetchError{Call: call, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		c.count("error")
		log.Printf("cta %s: status %d", call, resp.StatusCode)
		return nil, &FetchError{Call: call, StatusCode: resp.StatusCode}
	}
	if !json.Valid(body) {
		c.count("error")
		return nil, &FetchError{Call: call, StatusCode: resp.StatusCode, Err: ErrNotJSON}
	}

	c.count("miss")
	if err := c.cache.Set(cacheKey, body); err != nil {
		log.Printf("cta cache set %s: %v", call, err)
	}
	return body, nil
}

func (c *Client) count(result string) {
	if c.metrics != nil {
		c.metrics.CTARequests.WithLabelValues(result).Inc()
	}
}

// scrubKey removes the API key from transport errors, which quote the URL.
func scrubKey(err error, key string) error {
	var ue *url.Error
	if key == "" || !errors.As(err, &ue) {
		return err
	}
	return fmt.Errorf("%s %s: %w", ue.Op, strings.ReplaceAll(ue.URL, key, "REDACTED"), ue.Err)
}
