package runstore

import (
	"log/slog"
	"time"
)

// Options configure the store.
type Options struct {
	Logger    *slog.Logger
	JetStream *JetStreamOptions
}

// JetStreamOptions describe how to persist run history in NATS JetStream.
type JetStreamOptions struct {
	URL           string
	User          string
	Password      string
	EventsPrefix  string
	RunsStream    string
	RunsMaxBytes  int64
	DupeWindow    time.Duration
	ConnectionTag string
}

func (o *JetStreamOptions) setDefaults() {
	if o.EventsPrefix == "" {
		o.EventsPrefix = "saprunner.events"
	}
	if o.RunsStream == "" {
		o.RunsStream = "saprunner_runs"
	}
	if o.RunsMaxBytes == 0 {
		o.RunsMaxBytes = 1024 * 1024 * 1024 // 1GB
	}
	if o.DupeWindow == 0 {
		o.DupeWindow = 2 * time.Minute
	}
	if o.ConnectionTag == "" {
		o.ConnectionTag = "saprunner-api"
	}
}
