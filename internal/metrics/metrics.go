// Package metrics holds the prometheus collectors for the API server and the
// inbox sync engine. Collectors register on the registerer they are given; a
// nil registerer keeps them unregistered, which is what tests use.
package metrics

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pasar_tani"

type Sync struct {
	polls   *prometheus.CounterVec
	stale   *prometheus.CounterVec
	skipped *prometheus.CounterVec
	sends   *prometheus.CounterVec
}

func NewSync(reg prometheus.Registerer) *Sync {
	f := promauto.With(reg)
	return &Sync{
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbox",
			Name:      "polls_total",
			Help:      "Poll cycles by scope and result.",
		}, []string{"scope", "result"}),
		stale: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbox",
			Name:      "stale_responses_total",
			Help:      "Responses discarded because a newer request was issued.",
		}, []string{"scope"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbox",
			Name:      "skipped_ticks_total",
			Help:      "Ticks skipped because the previous poll was still in flight.",
		}, []string{"scope"}),
		sends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbox",
			Name:      "sends_total",
			Help:      "Outgoing messages by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Sync) Poll(scope, result string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(scope, result).Inc()
}

func (m *Sync) Stale(scope string) {
	if m == nil {
		return
	}
	m.stale.WithLabelValues(scope).Inc()
}

func (m *Sync) Skipped(scope string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(scope).Inc()
}

func (m *Sync) Send(outcome string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(outcome).Inc()
}

type HTTP struct {
	requests     *prometheus.CounterVec
	messagesSent prometheus.Counter
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	f := promauto.With(reg)
	return &HTTP{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		messagesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "messages_sent_total",
			Help:      "Messages stored through the API.",
		}),
	}
}

// Middleware counts every request once the handler chain has run.
func (m *HTTP) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		m.requests.WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).Inc()
		return err
	}
}

func (m *HTTP) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}
