package notify

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/SuPReme-0/ClassLens/internal/bus"
)

// Frame is what a subscriber receives on the wire.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Relay delivers bus messages to local subscribers until ctx is done.
func Relay(ctx context.Context, b bus.Bus, reg *Registry) error {
	msgs, err := b.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		frame, err := json.Marshal(Frame{Type: msg.Type, Data: msg.Body})
		if err != nil {
			log.Warn().Err(err).Str("type", msg.Type).Msg("encode frame failed")
			continue
		}
		var n int
		if msg.Group != "" {
			n = reg.BroadcastGroup(msg.Group, frame)
		} else {
			n = reg.Broadcast(frame)
		}
		log.Debug().Str("type", msg.Type).Str("group", msg.Group).Int("delivered", n).Msg("event relayed")
	}
	return ctx.Err()
}
