// Relay carries realtime events between Stockpile instances over redis Pub/Sub.
// Every instance subscribes to the same fixed topics and delivers what siblings publish to its own connections.

package relay

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/pkg/db"
	"Stockpile/pkg/log"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	pkgerrors "github.com/pkg/errors"
)

// Deliverer receives messages published by sibling instances. Deliver must not block.
type Deliverer interface {
	Deliver(msg entity.RelayMessage)
}

type Options struct {
	InstanceID string
	// Channel prefix, channels are named <prefix>:<topic>.
	Prefix     string
	QueueSize  int
	MaxBackoff time.Duration
}

type Relay struct {
	db     *db.RedisDB
	opts   Options
	logger log.Logger

	queue     chan entity.RelayMessage
	connected atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(dbwrp *db.RedisDB, opts Options, logger log.Logger) *Relay {
	if opts.QueueSize < 1 {
		opts.QueueSize = 1024
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Prefix == "" {
		opts.Prefix = "stockpile"
	}
	return &Relay{
		db:     dbwrp,
		opts:   opts,
		logger: logger.With("instance", opts.InstanceID),
		queue:  make(chan entity.RelayMessage, opts.QueueSize),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Channel returns the redis channel of topic.
func (r *Relay) Channel(topic entity.RelayTopic) string {
	return r.opts.Prefix + ":" + string(topic)
}

// Ready is closed once the first subscription is confirmed.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Connected reports whether the subscription is currently live.
func (r *Relay) Connected() bool {
	return r.connected.Load()
}

// Publish queues msg for the bus without blocking.
// While the bus is unavailable or the queue is full the message is lost, never retried.
func (r *Relay) Publish(msg entity.RelayMessage) error {
	if !knownTopic(msg.Topic) {
		return errors.Cause{Kind: errors.ErrDeliveryFailure, Detail: "unknown relay topic " + string(msg.Topic)}
	}
	if !r.connected.Load() {
		return errors.ErrRelayUnavailable
	}
	if msg.Origin == "" {
		msg.Origin = r.opts.InstanceID
	}
	select {
	case r.queue <- msg:
		return nil
	default:
		return errors.Cause{Kind: errors.ErrRelayUnavailable, Detail: "relay queue full"}
	}
}

func knownTopic(topic entity.RelayTopic) bool {
	for _, t := range entity.RelayTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// Run subscribes to every topic and publishes queued messages until ctx is done or Close is called.
// A lost subscription is retried with bounded exponential backoff.
func (r *Relay) Run(ctx context.Context, d Deliverer) error {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	var wg sync.WaitGroup
	defer close(r.done)
	defer wg.Wait()
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.publishLoop(ctx)
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	if b.InitialInterval > r.opts.MaxBackoff {
		b.InitialInterval = r.opts.MaxBackoff
	}
	b.MaxInterval = r.opts.MaxBackoff
	// Retry for as long as the process lives.
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		err := r.subscribe(ctx, d, b.Reset)
		r.connected.Store(false)
		if ctx.Err() != nil {
			r.logger.Info().Msg("Relay stopped")
			return nil
		}
		wait := b.NextBackOff()
		r.logger.Warn().Err(err).Str("reason", errors.ErrRelayUnavailable.Reason()).
			Msgf("Relay subscription lost, retrying in %s", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// subscribe holds one subscription until it fails. onConfirmed runs once redis confirms it.
func (r *Relay) subscribe(ctx context.Context, d Deliverer, onConfirmed func()) error {
	channels := make([]string, 0, len(entity.RelayTopics))
	for _, topic := range entity.RelayTopics {
		channels = append(channels, r.Channel(topic))
	}
	pubsub := r.db.Client().Subscribe(ctx, channels...)
	// ReceiveMessage doesn't watch ctx, closing the subscription unblocks it.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = pubsub.Close()
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		return pkgerrors.Wrap(err, "relay subscribe")
	}
	r.connected.Store(true)
	r.readyOnce.Do(func() { close(r.ready) })
	onConfirmed()
	r.logger.Info().Strs("channels", channels).Msg("Relay subscribed")

	for {
		m, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return pkgerrors.Wrap(err, "relay receive")
		}
		r.handle(m, d)
	}
}

func (r *Relay) handle(m *redis.Message, d Deliverer) {
	var msg entity.RelayMessage
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		r.logger.Warn().Err(err).Str("topic", m.Channel).Str("reason", errors.ErrMalformedMessage.Reason()).
			Msg("Undecodable relay message dropped")
		return
	}
	if msg.Origin == r.opts.InstanceID {
		// Published here, already delivered locally.
		return
	}
	d.Deliver(msg)
}

// publishLoop drains the queue in order, so messages of one topic leave this instance FIFO.
func (r *Relay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			payload, err := json.Marshal(msg)
			if err != nil {
				r.logger.Error().Err(err).Str("topic", string(msg.Topic)).Str("event", string(msg.Event.Name)).
					Str("reason", errors.ErrDeliveryFailure.Reason()).Msg("Couldn't encode relay message")
				continue
			}
			if err := r.db.Client().Publish(ctx, r.Channel(msg.Topic), payload).Err(); err != nil && ctx.Err() == nil {
				r.logger.Warn().Err(err).Str("topic", string(msg.Topic)).Str("event", string(msg.Event.Name)).
					Str("reason", errors.ErrRelayUnavailable.Reason()).Msg("Error occured during execution of redis.Publish in relay.publishLoop")
			}
		}
	}
}

// Close stops Run and waits for it to return.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
