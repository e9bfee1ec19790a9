package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SuPReme-0/ClassLens/internal/attendance"
	"github.com/SuPReme-0/ClassLens/internal/bus"
	"github.com/SuPReme-0/ClassLens/internal/metrics"
)

// Event types pushed to subscribers.
const (
	EventSessionStarted   = "session_started"
	EventAttendanceMarked = "attendance_marked"
)

// Fanout publishes domain events onto the bus without ever failing the caller.
type Fanout struct {
	bus     bus.Bus
	timeout time.Duration
}

var _ attendance.Notifier = (*Fanout)(nil)

// NewFanout creates a notifier. Publishes give up after timeout.
func NewFanout(b bus.Bus, timeout time.Duration) *Fanout {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Fanout{bus: b, timeout: timeout}
}

// AnnounceSessionStarted broadcasts to every subscriber.
func (f *Fanout) AnnounceSessionStarted(ctx context.Context, evt attendance.SessionStarted) {
	f.publish(ctx, EventSessionStarted, "", evt)
}

// AnnounceAttendanceMarked goes to subscribers that joined the class group.
func (f *Fanout) AnnounceAttendanceMarked(ctx context.Context, evt attendance.AttendanceMarked) {
	f.publish(ctx, EventAttendanceMarked, evt.ClassID, evt)
}

func (f *Fanout) publish(ctx context.Context, typ, group string, evt any) {
	body, err := json.Marshal(evt)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(typ, "error").Inc()
		log.Error().Err(err).Str("type", typ).Msg("encode event failed")
		return
	}
	// detach from the request so a finished handler does not cancel the publish
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()
	if err := f.bus.Publish(pubCtx, bus.Message{Type: typ, Group: group, Body: body}); err != nil {
		metrics.EventsPublished.WithLabelValues(typ, "error").Inc()
		log.Warn().Err(err).Str("type", typ).Str("class_id", group).Msg("event publish failed")
		return
	}
	metrics.EventsPublished.WithLabelValues(typ, "ok").Inc()
}
