package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// runIDHeader carries the pipeline run identity on every published message
// so downstream consumers can tell restarts apart.
const runIDHeader = "Feedrelay-Run-Id"

// Sink receives decoded feed events from the pipeline.
type Sink interface {
	Write(ctx context.Context, event *DecodedMessageEvent) error
	Close() error
}

// NATSSink publishes decoded feed events to a NATS JetStream stream.
type NATSSink struct {
	conn      *nats.Conn
	js        nats.JetStreamContext
	stream    string
	subject   string
	runID     string
	connected bool
}

// NewNATSSink connects to NATS and ensures the target stream exists.
func NewNATSSink(url, stream, subject string) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// Create the stream if it does not exist yet
	_, err = js.StreamInfo(stream)
	if err != nil {
		log.Printf("NATSSink: creating stream %s for subject %s", stream, subject)

		streamConfig := &nats.StreamConfig{
			Name:      stream,
			Subjects:  []string{subject},
			Retention: nats.InterestPolicy,
			Storage:   nats.FileStorage,
			MaxAge:    24 * time.Hour,
			Replicas:  1,
		}

		_, err = js.AddStream(streamConfig)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	return &NATSSink{
		conn:      conn,
		js:        js,
		stream:    stream,
		subject:   subject,
		runID:     uuid.NewString(),
		connected: true,
	}, nil
}

// Write publishes a decoded feed event to JetStream.
func (s *NATSSink) Write(ctx context.Context, event *DecodedMessageEvent) error {
	if !s.connected {
		return fmt.Errorf("NATS connection is closed")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &nats.Msg{
		Subject: s.subject,
		Data:    data,
		Header:  nats.Header{runIDHeader: []string{s.runID}},
	}
	if _, err := s.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}

	return nil
}

// Close closes the NATS connection.
func (s *NATSSink) Close() error {
	if s.conn != nil {
		s.connected = false
		s.conn.Close()
	}
	return nil
}
