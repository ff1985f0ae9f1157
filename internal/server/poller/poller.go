// Package poller consumes checkout events and empties the purchasing user's cart.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/logger"
)

// ErrInvalidEvent marks a message that can never be processed.
var ErrInvalidEvent = errors.New("invalid checkout event")

// Clearer empties an owner's cart. service.CartService satisfies it and takes
// care of cache invalidation.
type Clearer interface {
	ClearCart(ctx context.Context, owner string) error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Poller struct {
	carts   Clearer
	reader  messageReader
	log     *slog.Logger
	backoff time.Duration
}

// checkoutEvent is the part of the checkout outbox payload the cart side needs.
type checkoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

func NewPoller(carts Clearer, cfg Config, log *slog.Logger) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(carts, reader, log)
}

func newPoller(carts Clearer, reader messageReader, log *slog.Logger) *Poller {
	if log == nil {
		log = logger.Nop()
	}
	return &Poller{
		carts:   carts,
		reader:  reader,
		log:     log.With("component", "checkout_poller"),
		backoff: time.Second,
	}
}

// Run reads until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.poll(ctx); err != nil && ctx.Err() == nil {
			p.log.ErrorContext(ctx, "error reading message", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.backoff):
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", "error", err)
	}
}

// poll returns an error only when reading failed. Bad payloads and failed
// clears are logged and skipped so one poisoned message cannot stall the topic.
func (p *Poller) poll(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}

	if err := p.handle(ctx, m.Value); err != nil {
		p.log.ErrorContext(ctx, "checkout event dropped",
			"partition", m.Partition, "offset", m.Offset, "error", err)
	}
	return nil
}

func (p *Poller) handle(ctx context.Context, value []byte) error {
	var event checkoutEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if event.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidEvent)
	}

	if err := p.carts.ClearCart(ctx, domain.UserOwner(event.UserID)); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	p.log.InfoContext(ctx, "cart cleared after checkout",
		"checkout_id", event.CheckoutID, "user_id", event.UserID)
	return nil
}
