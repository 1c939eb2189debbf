// Package events delivers committed ledger events to everything downstream
// of the engine: the pub/sub bus, the audit log, chat alerts, metrics and
// the market read cache. Delivery is asynchronous and never feeds back into
// the ledger.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/amby/internal/domain"
	"github.com/alanyoungcy/amby/internal/metrics"
)

// Pub/sub channels, one per event family.
const (
	ChannelMarket = "ch:market"
	ChannelStake  = "ch:stake"
	ChannelOwner  = "ch:owner"
)

// Channels lists every channel the dispatcher publishes to.
var Channels = []string{ChannelMarket, ChannelStake, ChannelOwner}

const (
	defaultBuffer = 1024
	drainTimeout  = 5 * time.Second
)

// ChannelFor maps an event type to its pub/sub channel.
func ChannelFor(t domain.EventType) string {
	switch t {
	case domain.EventMarketCreated:
		return ChannelMarket
	case domain.EventStakePlaced:
		return ChannelStake
	case domain.EventOwnerSet:
		return ChannelOwner
	default:
		return "ch:" + string(t)
	}
}

// EventNotifier sends an alert for one event.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, ev domain.Event) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBus publishes each event as JSON on its channel.
func WithBus(bus domain.SignalBus) Option { return func(d *Dispatcher) { d.bus = bus } }

// WithAudit appends each event to the audit log.
func WithAudit(audit domain.AuditStore) Option { return func(d *Dispatcher) { d.audit = audit } }

// WithNotifier forwards each event to chat senders.
func WithNotifier(n EventNotifier) Option { return func(d *Dispatcher) { d.notifier = n } }

// WithCache drops the cached snapshot of a market whenever it takes a stake.
func WithCache(c domain.MarketCache) Option { return func(d *Dispatcher) { d.cache = c } }

// WithMetrics counts events.
func WithMetrics(m *metrics.Ledger) Option { return func(d *Dispatcher) { d.metrics = m } }

// WithBuffer sets the queue capacity.
func WithBuffer(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.buffer = n
		}
	}
}

// Dispatcher implements domain.EventSink with a bounded queue drained by Run.
// When the queue is full new events are dropped and counted.
type Dispatcher struct {
	queue  chan domain.Event
	buffer int

	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier EventNotifier
	cache    domain.MarketCache
	metrics  *metrics.Ledger
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. Call Run to start delivery.
func NewDispatcher(logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{buffer: defaultBuffer, logger: logger.With(slog.String("component", "events"))}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan domain.Event, d.buffer)
	return d
}

// Emit queues ev without blocking.
func (d *Dispatcher) Emit(ctx context.Context, ev domain.Event) {
	select {
	case d.queue <- ev:
	default:
		d.metrics.ObserveDropped()
		d.logger.WarnContext(ctx, "event queue full, dropping event",
			slog.String("type", string(ev.Type)),
			slog.Uint64("market_id", ev.MarketID),
		)
	}
}

// Run delivers queued events until ctx is done, then flushes what is left
// with a short grace period.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.drain()
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev domain.Event) {
	d.metrics.ObserveEvent(string(ev.Type))
	if ev.Type == domain.EventStakePlaced && ev.Amount != nil {
		amount, _ := new(big.Float).SetInt(ev.Amount.ToBig()).Float64()
		d.metrics.ObserveStake(ev.Outcome.String(), amount)
	}

	if d.cache != nil && ev.Type == domain.EventStakePlaced {
		if err := d.cache.Invalidate(ctx, ev.MarketID); err != nil {
			d.warn(ctx, "cache invalidate failed", ev, err)
		}
	}

	if d.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			d.warn(ctx, "marshal event failed", ev, err)
		} else if err := d.bus.Publish(ctx, ChannelFor(ev.Type), payload); err != nil {
			d.warn(ctx, "publish failed", ev, err)
		}
	}

	if d.audit != nil {
		if err := d.audit.Log(ctx, string(ev.Type), Detail(ev)); err != nil {
			d.warn(ctx, "audit log failed", ev, err)
		}
	}

	if d.notifier != nil {
		if err := d.notifier.NotifyEvent(ctx, ev); err != nil {
			d.warn(ctx, "notify failed", ev, err)
		}
	}
}

func (d *Dispatcher) warn(ctx context.Context, msg string, ev domain.Event, err error) {
	d.logger.WarnContext(ctx, msg,
		slog.String("type", string(ev.Type)),
		slog.String("event_id", ev.ID),
		slog.String("error", err.Error()),
	)
}

// Detail flattens ev into the audit log's JSON detail map.
func Detail(ev domain.Event) map[string]any {
	detail := map[string]any{
		"event_id":    ev.ID,
		"occurred_at": ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if ev.MarketID != 0 {
		detail["market_id"] = ev.MarketID
	}
	if ev.Title != "" {
		detail["title"] = ev.Title
	}
	if ev.EndTime != 0 {
		detail["end_time"] = ev.EndTime
	}
	if ev.Payer != nil {
		detail["payer"] = ev.Payer.Hex()
	}
	if ev.Outcome != 0 {
		detail["outcome"] = ev.Outcome.String()
	}
	if ev.Amount != nil {
		detail["amount"] = ev.Amount.Dec()
	}
	if ev.Account != nil {
		detail["account"] = ev.Account.Hex()
	}
	if ev.TransferID != nil {
		detail["transfer_id"] = ev.TransferID.Hex()
	}
	return detail
}

var _ domain.EventSink = (*Dispatcher)(nil)
