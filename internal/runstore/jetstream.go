package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

type jetStreamMirror struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	opts   *JetStreamOptions
	logger *slog.Logger
}

// runEvent is the JetStream payload for one run snapshot.
type runEvent struct {
	Run       *Run      `json:"run"`
	Version   uint64    `json:"version"`
	EmittedAt time.Time `json:"emitted_at"`
}

func newJetStreamMirror(ctx context.Context, opts *JetStreamOptions, logger *slog.Logger) (*jetStreamMirror, error) {
	cfg := *opts
	cfg.setDefaults()
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	natsOpts := []nats.Option{nats.Name(cfg.ConnectionTag)}
	if cfg.User != "" {
		natsOpts = append(natsOpts, nats.UserInfo(cfg.User, cfg.Password))
	}
	conn, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, err
	}
	m := &jetStreamMirror{
		conn:   conn,
		js:     js,
		opts:   &cfg,
		logger: logger,
	}
	if err := m.ensureStream(ctx, &nats.StreamConfig{
		Name:       cfg.RunsStream,
		Subjects:   []string{m.runsWildcard()},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		MaxMsgs:    -1,
		MaxBytes:   cfg.RunsMaxBytes,
		Discard:    nats.DiscardOld,
		Duplicates: cfg.DupeWindow,
	}); err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

func (m *jetStreamMirror) Close() {
	if m.conn != nil {
		m.conn.Drain()
		m.conn.Close()
	}
}

func (m *jetStreamMirror) ensureStream(ctx context.Context, cfg *nats.StreamConfig) error {
	if _, err := m.js.StreamInfo(cfg.Name, nats.Context(ctx)); err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			_, addErr := m.js.AddStream(cfg, nats.Context(ctx))
			return addErr
		}
		return err
	}
	_, err := m.js.UpdateStream(cfg, nats.Context(ctx))
	return err
}

func (m *jetStreamMirror) hydrate(ctx context.Context, st *Store) error {
	sub, err := m.js.PullSubscribe(
		m.runsWildcard(),
		"",
		nats.BindStream(m.opts.RunsStream),
		nats.DeliverAll(),
		nats.AckExplicit(),
	)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	return m.drain(ctx, sub, func(msg *nats.Msg) error {
		var evt runEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			m.logger.Error("run replay decode", "err", err)
			return msg.Ack()
		}
		if evt.Run != nil && evt.Run.ID != "" {
			st.applyReplayedRun(evt.Run, evt.Version)
		}
		return msg.Ack()
	})
}

func (m *jetStreamMirror) drain(ctx context.Context, sub *nats.Subscription, handler func(*nats.Msg) error) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := sub.Fetch(64, nats.MaxWait(500*time.Millisecond))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return err
		}
		for _, msg := range msgs {
			if err := handler(msg); err != nil {
				return err
			}
		}
		if len(msgs) == 0 {
			return nil
		}
	}
}

func (m *jetStreamMirror) publishRun(run *Run, version uint64) error {
	payload, err := json.Marshal(runEvent{
		Run:       run,
		Version:   version,
		EmittedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	msgID := fmt.Sprintf("run:%s:%d", run.ID, version)
	_, err = m.js.Publish(m.runSubject(run.ID), payload, nats.MsgId(msgID))
	return err
}

func (m *jetStreamMirror) runSubject(id string) string {
	if id == "" {
		id = "unknown"
	}
	return fmt.Sprintf("%s.runs.%s", m.opts.EventsPrefix, id)
}

func (m *jetStreamMirror) runsWildcard() string {
	return fmt.Sprintf("%s.runs.*", m.opts.EventsPrefix)
}
