package publisher

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"chicommute/internal/feed"
	"chicommute/internal/transit"
)

const DefaultSubjectPrefix = "metra"

type conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher fans every feed snapshot out to NATS: one message per route
// on <prefix>.<route> carrying that route's view, and the full alert list on
// <prefix>.alerts.
type NATSPublisher struct {
	nc          conn
	closer      func()
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	now         func() time.Time
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("chicommute"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := newPublisher(nc, prefix, logSubjects, m)
	p.closer = func() {
		_ = nc.Drain()
		nc.Close()
	}
	return p, nil
}

func newPublisher(nc conn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{
		nc:          nc,
		prefix:      subjectToken(prefix),
		logSubjects: logSubjects,
		metrics:     m,
		now:         time.Now,
	}
}

func (p *NATSPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

// RouteMessage is the payload published per route.
type RouteMessage struct {
	Route       string    `json:"route"`
	PublishedAt time.Time `json:"publishedAt"`
	feed.View
}

type AlertsMessage struct {
	PublishedAt time.Time       `json:"publishedAt"`
	Alerts      []transit.Alert `json:"alerts"`
}

type message struct {
	subject string
	payload any
}

// PublishSnapshot implements feed.SnapshotPublisher. Every message is
// attempted and the failures are joined.
func (p *NATSPublisher) PublishSnapshot(snap feed.Snapshot) error {
	var errs []error
	for _, m := range p.messages(snap) {
		if err := p.publish(m.subject, m.payload); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", m.subject, err))
		}
	}
	return errors.Join(errs...)
}

func (p *NATSPublisher) messages(snap feed.Snapshot) []message {
	at := p.now().UTC()
	out := []message{{
		subject: p.prefix + ".alerts",
		payload: AlertsMessage{PublishedAt: at, Alerts: snap.Alerts},
	}}
	for _, route := range routes(snap) {
		view := feed.Filter(snap, feed.Selection{Line: route}, feed.FilterOptions{})
		out = append(out, message{
			subject: fmt.Sprintf("%s.%s", p.prefix, subjectToken(route)),
			payload: RouteMessage{Route: route, PublishedAt: at, View: view},
		})
	}
	return out
}

func (p *NATSPublisher) publish(subject string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s bytes=%d", subject, len(b))
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// routes lists the distinct route ids seen in positions and trip updates, in
// first-seen order. Alert-only routes are covered by the alerts subject.
func routes(snap feed.Snapshot) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(r string) {
		if r == "" || seen[r] {
			return
		}
		seen[r] = true
		out = append(out, r)
	}
	for _, v := range snap.Positions {
		if r, ok := v.RouteID(); ok {
			add(r)
		}
	}
	for _, tu := range snap.TripUpdates {
		add(tu.RouteID())
	}
	return out
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
