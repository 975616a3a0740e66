// Package nats implements an event sink that relays job events onto a NATS
// JetStream stream for external consumers.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const streamName = "VAREON"

// envelope is the wire format for relayed job events.
type envelope struct {
	Type    string          `json:"type"`
	JobID   string          `json:"job_id"`
	Payload json.RawMessage `json:"payload"`
}

// Relay publishes job events to JetStream. It is a best-effort sink; a
// publish failure is logged and never surfaces to the caller.
type Relay struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream
// covering job subjects exists.
func Connect(ctx context.Context, url string) (*Relay, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"jobs.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Relay{nc: nc, js: js}, nil
}

// Publish relays one job event to the subject jobs.<id>.events.
func (r *Relay) Publish(ctx context.Context, jobID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal relay payload", "type", eventType, "error", err)
		return
	}
	msg, err := json.Marshal(envelope{
		Type:    eventType,
		JobID:   jobID,
		Payload: data,
	})
	if err != nil {
		slog.Error("marshal relay envelope", "type", eventType, "error", err)
		return
	}

	subject := fmt.Sprintf("jobs.%s.events", jobID)
	if _, err := r.js.Publish(ctx, subject, msg); err != nil {
		slog.Error("nats publish failed", "subject", subject, "error", err)
	}
}

// Close shuts down the NATS connection.
func (r *Relay) Close() error {
	r.nc.Close()
	return nil
}
