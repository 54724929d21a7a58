package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/realtime"
)

// BridgeConfig holds the JetStream settings for cross-instance fan-out.
type BridgeConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectPrefix string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultBridgeConfig returns the bridge defaults. ConsumerName must be
// unique per gateway instance so every instance sees every event.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		URL:           nats.DefaultURL,
		StreamName:    "BOARD_EVENTS",
		ConsumerName:  "board-gateway",
		SubjectPrefix: "board.events",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Bridge publishes relayed events to JetStream and feeds events published
// by other gateway instances back into the hub, so a session's
// participants converge no matter which instance they landed on.
type Bridge struct {
	hub      *Hub
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   BridgeConfig

	// instanceID tags outbound messages so the consumer skips this
	// instance's own publishes.
	instanceID string
}

type bridgeEnvelope struct {
	InstanceID string         `json:"instance_id"`
	Event      realtime.Event `json:"event"`
}

// NewBridge connects to NATS, ensures the stream and consumer exist, and
// returns a bridge ready to Start.
func NewBridge(hub *Hub, instanceID string, config BridgeConfig) (*Bridge, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	b := &Bridge{
		hub:        hub,
		nc:         nc,
		js:         js,
		config:     config,
		instanceID: instanceID,
	}

	if err := b.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return b, nil
}

func (b *Bridge) ensureConsumer(ctx context.Context) error {
	stream, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      b.config.StreamName,
		Subjects:  []string{b.config.SubjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    time.Hour,
	})
	if err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}

	name := fmt.Sprintf("%s-%s", b.config.ConsumerName, b.instanceID)
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          name,
		Description:   "board gateway cross-instance consumer",
		FilterSubject: b.config.SubjectPrefix + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    b.config.MaxDeliver,
		AckWait:       b.config.AckWait,
		MaxAckPending: b.config.MaxAckPending,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	b.consumer = consumer
	return nil
}

// Forward publishes one relayed event for the other instances.
// Fire-and-forget: a failed publish is logged and dropped, matching the
// channel's at-least-once, no-rollback semantics.
func (b *Bridge) Forward(ev realtime.Event) {
	data, err := json.Marshal(bridgeEnvelope{InstanceID: b.instanceID, Event: ev})
	if err != nil {
		log.Error().Err(err).Msg("bridge envelope marshal failed")
		return
	}
	subject := fmt.Sprintf("%s.%s", b.config.SubjectPrefix, ev.SessionID)
	if _, err := b.js.PublishAsync(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("bridge publish dropped")
	}
}

// Start consumes events from the other instances until the context is
// cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	log.Info().
		Str("stream", b.config.StreamName).
		Str("instance_id", b.instanceID).
		Msg("starting bridge consumer")

	consumeCtx, err := b.consumer.Consume(func(msg jetstream.Msg) {
		var envelope bridgeEnvelope
		if err := json.Unmarshal(msg.Data(), &envelope); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping unparseable bridge message")
			msg.Ack()
			return
		}
		if envelope.InstanceID != b.instanceID {
			b.hub.RelayFromBridge(envelope.Event)
		}
		if err := msg.Ack(); err != nil {
			log.Error().Err(err).Msg("bridge ack failed")
		}
	})
	if err != nil {
		return fmt.Errorf("start bridge consumer: %w", err)
	}

	<-ctx.Done()
	consumeCtx.Stop()
	log.Info().Msg("bridge consumer stopped")
	return nil
}

// Close releases the NATS connection.
func (b *Bridge) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
