package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// WatermillBridge implements the Publisher and Subscriber interfaces using watermill's GoChannel.
type WatermillBridge struct {
	pub    message.Publisher
	sub    message.Subscriber
	tracer trace.Tracer
	logger *slog.Logger
}

const (
	// Metadata keys used to transfer our Message structure fields through watermill's message.
	metaKeyUserID = "user_id"
	metaKeyTopic  = "topic"
)

// Option configures a WatermillBridge.
type Option func(*WatermillBridge)

// WithLogger routes bridge and watermill logs to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(wb *WatermillBridge) {
		wb.logger = logger
	}
}

// WithTracer records a span for every publish and every handled message.
func WithTracer(tracer trace.Tracer) Option {
	return func(wb *WatermillBridge) {
		wb.tracer = tracer
	}
}

// NewWatermillBridge initializes an in-memory bus. Publish blocks until every
// subscriber of the topic has handled the message, so each subscriber sees a
// topic's messages in publish order.
func NewWatermillBridge(opts ...Option) *WatermillBridge {
	wb := &WatermillBridge{
		tracer: noop.NewTracerProvider().Tracer(tracerName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(wb)
	}
	wb.logger = wb.logger.With("component", "pubsub")

	goChannel := gochannel.NewGoChannel(
		gochannel.Config{BlockPublishUntilSubscriberAck: true},
		NewSlogAdapter(wb.logger),
	)
	wb.pub = goChannel
	wb.sub = goChannel
	return wb
}

// mapToWatermillMessage converts our pubsub.Message to a watermill message.
func mapToWatermillMessage(msg Message) *message.Message {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)

	wmMsg.Metadata.Set(metaKeyUserID, msg.UserID)
	wmMsg.Metadata.Set(metaKeyTopic, msg.Topic)
	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}

	return wmMsg
}

// mapToPubSubMessage converts a watermill message back to our internal pubsub.Message.
func mapToPubSubMessage(wmMsg *message.Message) Message {
	userID := wmMsg.Metadata.Get(metaKeyUserID)
	topic := wmMsg.Metadata.Get(metaKeyTopic)

	metadata := make(map[string]string)
	for k, v := range wmMsg.Metadata {
		if k != metaKeyUserID && k != metaKeyTopic {
			metadata[k] = v
		}
	}

	return Message{
		Topic:    topic,
		UserID:   userID,
		Payload:  wmMsg.Payload,
		Metadata: metadata,
	}
}

// Publish implements the Publisher interface.
func (wb *WatermillBridge) Publish(ctx context.Context, msg Message) error {
	ctx, span := startSpan(ctx, wb.tracer, "publish", msg)
	defer span.End()

	wmMsg := mapToWatermillMessage(msg)
	wmMsg.SetContext(ctx)
	propagator.Inject(ctx, propagation.MapCarrier(wmMsg.Metadata))
	if err := wb.pub.Publish(msg.Topic, wmMsg); err != nil {
		recordError(span, err)
		return err
	}
	return nil
}

// Subscribe implements the Subscriber interface.
func (wb *WatermillBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := wb.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for wmMsg := range messages {
			if ctx.Err() != nil {
				// Canceled but not yet detached by GoChannel.
				wmMsg.Ack()
				continue
			}
			msg := mapToPubSubMessage(wmMsg)

			parent := propagator.Extract(ctx, propagation.MapCarrier(wmMsg.Metadata))
			spanCtx, span := startSpan(parent, wb.tracer, "process", msg)
			if err := handler(spanCtx, msg); err != nil {
				recordError(span, err)
				wb.logger.Error("Failed to handle message", "topic", topic, "msg_id", wmMsg.UUID, "error", err)
			}
			span.End()
			// GoChannel redelivers nacked messages forever, so failures are acked after logging.
			wmMsg.Ack()
		}
		wb.logger.Debug("Subscription message loop ended", "topic", topic)
	}()

	return nil
}

// Close implements the Publisher and Subscriber interface to shut down the bridge.
func (wb *WatermillBridge) Close() error {
	return wb.sub.Close()
}
