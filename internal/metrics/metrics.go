package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStarted counts minted session tokens.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classlens",
		Name:      "sessions_started_total",
		Help:      "Attendance sessions opened by teachers.",
	})

	// Marks counts mark attempts by outcome.
	Marks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classlens",
		Name:      "attendance_marks_total",
		Help:      "Attendance mark attempts by result.",
	}, []string{"result"})

	// EventsPublished counts fan-out publishes by event type and result.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classlens",
		Name:      "events_published_total",
		Help:      "Real-time events handed to the event bus.",
	}, []string{"type", "result"})

	// Deliveries counts per-subscriber deliveries; dropped means the buffer was full.
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classlens",
		Name:      "event_deliveries_total",
		Help:      "Per-subscriber event deliveries.",
	}, []string{"result"})

	// Subscribers is the number of connected real-time clients.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classlens",
		Name:      "subscribers",
		Help:      "Connected real-time subscribers.",
	})
)

// Mark result labels.
const (
	MarkOK          = "ok"
	MarkDuplicate   = "duplicate"
	MarkRaceLost    = "duplicate_race"
	MarkNotEnrolled = "not_enrolled"
	MarkError       = "error"
)
