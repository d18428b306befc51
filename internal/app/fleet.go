package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pscheid92/relay/internal/domain"
)

type shutdownTrigger interface {
	Trigger(source string) bool
}

// FleetListener starts a local drain when the operator publishes the
// shutdown command on the fleet channel.
type FleetListener struct {
	subscriber domain.Subscriber
	trigger    shutdownTrigger
}

func NewFleetListener(subscriber domain.Subscriber, trigger shutdownTrigger) *FleetListener {
	return &FleetListener{subscriber: subscriber, trigger: trigger}
}

// Run blocks until ctx is cancelled.
func (l *FleetListener) Run(ctx context.Context) error {
	for ev := range l.subscriber.Subscribe(ctx) {
		switch ev.Kind {
		case domain.EventMessage:
			if strings.TrimSpace(ev.Payload) != domain.FleetShutdownCommand {
				slog.WarnContext(ctx, "Ignoring unknown fleet command", "payload", ev.Payload)
				continue
			}
			slog.WarnContext(ctx, "Fleet shutdown requested")
			l.trigger.Trigger("fleet")
		case domain.EventError:
			slog.WarnContext(ctx, "Fleet subscription error", "error", ev.Err)
		}
	}
	return nil
}
