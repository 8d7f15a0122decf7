package ports

import "context"

// Notification is an outbound, read-only projection pushed to the transport.
type Notification struct {
	Type      string `json:"type"`
	Partition string `json:"partition"`
	TownID    string `json:"town_id,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

type Notifier interface {
	Publish(ctx context.Context, n Notification)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Notification) {}
