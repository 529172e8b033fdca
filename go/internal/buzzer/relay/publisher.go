package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
)

// msgPublisher is the publishing half of jetstream.JetStream.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamPublisher mirrors arbiter transitions onto a JetStream stream.
// Publish only enqueues; Run does the network I/O.
type JetStreamPublisher struct {
	js      jetstream.JetStream
	pub     msgPublisher
	config  Config
	queue   chan buzzer.Event
	dropped atomic.Int64
}

func NewJetStreamPublisher(ctx context.Context, nc *nats.Conn, cfg Config) (*JetStreamPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := newPublisher(js, cfg)
	p.js = js
	if err := p.ensureStream(ctx); err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func newPublisher(pub msgPublisher, cfg Config) *JetStreamPublisher {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultConfig().QueueSize
	}
	return &JetStreamPublisher{
		pub:    pub,
		config: cfg,
		queue:  make(chan buzzer.Event, size),
	}
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Buzzer contest state changes",
		Subjects:    []string{fmt.Sprintf("%s.events.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		MaxMsgs:     p.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    p.config.Replicas,
		Duplicates:  p.config.DuplicateWindow,
	}

	stream, err := p.js.Stream(ctx, p.config.StreamName)
	if err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = p.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

// Publish queues evt for mirroring. When the queue is full the event is
// dropped; observers are unaffected.
func (p *JetStreamPublisher) Publish(evt buzzer.Event) {
	select {
	case p.queue <- evt:
	default:
		p.dropped.Add(1)
		log.Warn().
			Str("event_id", evt.ID.String()).
			Str("event_type", string(evt.Kind)).
			Msg("relay queue full, dropping event")
	}
}

// Dropped reports how many events were not mirrored because the queue was full.
func (p *JetStreamPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Run publishes queued events in order until ctx is cancelled.
func (p *JetStreamPublisher) Run(ctx context.Context) error {
	log.Info().Str("stream", p.config.StreamName).Msg("event relay started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Int("pending", len(p.queue)).Msg("event relay stopped")
			return nil
		case evt := <-p.queue:
			if err := p.publishEvent(ctx, evt); err != nil {
				log.Error().
					Err(err).
					Str("event_id", evt.ID.String()).
					Msg("failed to relay event")
			}
		}
	}
}

func (p *JetStreamPublisher) publishEvent(ctx context.Context, evt buzzer.Event) error {
	subject := EventSubject(p.config.SubjectPrefix, evt.Kind)

	data, err := json.Marshal(newEnvelope(evt))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ack, err := p.pub.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(evt.Kind)},
			"Event-ID":   []string{evt.ID.String()},
		},
	},
		jetstream.WithMsgID(evt.ID.String()),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", evt.ID.String()).
		Uint64("sequence", ack.Sequence).
		Str("stream", ack.Stream).
		Msg("published to JetStream")

	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates &&
		len(a.Subjects) == len(b.Subjects) &&
		(len(a.Subjects) == 0 || a.Subjects[0] == b.Subjects[0])
}

var _ buzzer.Listener = (*JetStreamPublisher)(nil)
