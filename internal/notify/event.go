package notify

import (
	"context"
	"errors"
	"time"
)

// EventType names a report lifecycle event. It doubles as the AMQP routing key.
type EventType string

const (
	EventCreated       EventType = "report.created"
	EventResolved      EventType = "report.resolved"
	EventAuditRejected EventType = "report.audit_rejected"
	EventDeleted       EventType = "report.deleted"
)

// Event is published after a lifecycle change has been persisted.
type Event struct {
	Type        EventType `json:"type"`
	ReportID    string    `json:"report_id"`
	Authority   string    `json:"authority"`
	Address     string    `json:"address"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	DefectCount int       `json:"defect_count"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier delivers events to an external channel.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Multi fans an event out to every configured notifier.
type Multi []Notifier

// Notify calls each notifier and joins their errors.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
