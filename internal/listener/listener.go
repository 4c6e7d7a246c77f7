// Package listener consumes Cloud Storage notifications from a Pub/Sub subscription and
// forwards each created object to the webhook.
package listener

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/loan-rate-crawler/internal/forwarder"
)

// Receiver is satisfied by *pubsub.Subscriber.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Forwarder sends one object reference to the webhook.
type Forwarder interface {
	Forward(ctx context.Context, ref forwarder.ObjectRef) forwarder.Result
}

// Listener bridges a subscription to the forwarder.
type Listener struct {
	receiver  Receiver
	forwarder Forwarder
	logger    *zap.Logger
}

// New builds a Listener.
func New(receiver Receiver, fwd Forwarder, logger *zap.Logger) (*Listener, error) {
	if receiver == nil {
		return nil, fmt.Errorf("receiver is required")
	}
	if fwd == nil {
		return nil, fmt.Errorf("forwarder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{receiver: receiver, forwarder: fwd, logger: logger}, nil
}

// Run blocks until ctx is canceled or the subscription fails.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("listening for storage notifications")
	err := l.receiver.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		l.handle(ctx, msg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive storage notifications: %w", err)
	}
	return nil
}

// handle acks every message: each notification gets exactly one webhook attempt.
func (l *Listener) handle(ctx context.Context, msg *pubsub.Message) {
	defer msg.Ack()

	ref, err := forwarder.DecodePubSubMessage(msg.Data, msg.Attributes)
	switch {
	case errors.Is(err, forwarder.ErrIgnoredEvent):
		l.logger.Debug("skipping storage notification",
			zap.String("message_id", msg.ID),
			zap.String("event_type", msg.Attributes["eventType"]),
		)
		return
	case err != nil:
		l.logger.Error("undecodable storage notification", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}

	res := l.forwarder.Forward(ctx, ref)
	if !res.OK() {
		l.logger.Warn("storage notification not delivered",
			zap.String("message_id", msg.ID),
			zap.String("key", ref.Key),
			zap.String("result", res.Body),
		)
	}
}
