// Package notify turns visit events into host notifications.
package notify

import (
	"context"
	"time"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/mailer"
	"github.com/diagnosis/visitor-management/pkg/events"
	"github.com/diagnosis/visitor-management/pkg/logger"
)

const queueGroup = "notify"

// HostLookup is the part of the user store the notifier needs.
type HostLookup interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

type LocationLookup interface {
	FindByID(ctx context.Context, id string) (*domain.Location, error)
}

type Notifier struct {
	hosts     HostLookup
	locations LocationLookup
	mailer    mailer.Service
	loc       *time.Location
}

func NewNotifier(hosts HostLookup, locations LocationLookup, m mailer.Service, loc *time.Location) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{hosts: hosts, locations: locations, mailer: m, loc: loc}
}

// Register subscribes the notifier on bus. With NATS, replicas share the
// queue group so each event is mailed once.
func (n *Notifier) Register(bus events.Subscriber) error {
	return bus.QueueSubscribe(events.VisitCheckedIn, queueGroup, n.handleCheckedIn)
}

func (n *Notifier) handleCheckedIn(msg *events.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var evt events.VisitEvent
	if err := msg.Decode(&evt); err != nil {
		logger.Error("Failed to decode visit event", "error", err, "subject", msg.Subject, "message_id", msg.ID)
		return
	}
	if err := n.VisitorArrived(ctx, evt); err != nil {
		logger.ErrorContext(ctx, "Failed to notify host", "error", err, "visit_id", evt.VisitID, "host_id", evt.HostID)
	}
}

// VisitorArrived emails the host unless they switched notifications off.
func (n *Notifier) VisitorArrived(ctx context.Context, evt events.VisitEvent) error {
	host, err := n.hosts.FindByID(ctx, evt.HostID)
	if err != nil {
		return err
	}
	if !host.NotificationsEnabled {
		logger.DebugContext(ctx, "Host notifications disabled", "host_id", host.ID)
		return nil
	}

	locationName := ""
	if loc, err := n.locations.FindByID(ctx, evt.LocationID); err == nil {
		locationName = loc.Name
	}

	arrived := evt.OccurredAt
	if evt.CheckInTime != nil {
		arrived = *evt.CheckInTime
	}

	return n.mailer.SendVisitorArrived(ctx, mailer.VisitorArrived{
		HostEmail:    host.Email,
		HostName:     host.Name,
		VisitorName:  evt.VisitorName,
		Company:      evt.Company,
		LocationName: locationName,
		ArrivedAt:    arrived.In(n.loc),
	})
}
