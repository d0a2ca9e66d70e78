package provision

import (
	"context"
	"time"
)

// EventType names a partition lifecycle transition.
type EventType string

const (
	EventCloned  EventType = "partition.cloned"
	EventDropped EventType = "partition.dropped"
)

// Event is published after a lifecycle change has been committed.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Database   string    `json:"database"`
	Partition  string    `json:"partition"`
	Source     string    `json:"source,omitempty"`
	Tenant     string    `json:"tenant,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

//go:generate mockgen -source=events.go -destination=mocks/mocks.go -package=mocks EventPublisher

// EventPublisher delivers lifecycle events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
