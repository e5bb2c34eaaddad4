package notify

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// RealtimeBus pushes payment updates to dashboard subscribers. Best-effort.
type RealtimeBus interface {
	Publish(subject string, payload any) error
}

// NATSBus publishes JSON payloads over a NATS connection.
type NATSBus struct {
	nc *nats.Conn
}

func NewNATSBus(nc *nats.Conn) *NATSBus {
	return &NATSBus{nc: nc}
}

func (b *NATSBus) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.nc.Publish(subject, data)
}

// NoopBus is used when no NATS server is configured.
type NoopBus struct{}

func (NoopBus) Publish(subject string, payload any) error { return nil }
