package network

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cmwaters/privpoll/poll"
)

// DefaultBroadcastTimeout bounds a single broadcast from the bridge
const DefaultBroadcastTimeout = 10 * time.Second

// Subscriber is the part of the event bus the bridge depends on.
type Subscriber interface {
	SubscribeFunc(poll.EventType, poll.EventHandlerFunc) poll.SubscriberID
	Unsubscribe(poll.EventType, poll.SubscriberID)
}

// Bridge forwards every event published on a local bus to the network.
// Broadcast failures are logged and dropped: gossip is best effort and the
// engine's state never depends on it.
type Bridge struct {
	bus     Subscriber
	gossip  Broadcaster
	timeout time.Duration
	logger  zerolog.Logger

	mtx  sync.Mutex
	subs map[poll.EventType]poll.SubscriberID
}

func NewBridge(bus Subscriber, gossip Broadcaster, logger zerolog.Logger) *Bridge {
	return &Bridge{
		bus:     bus,
		gossip:  gossip,
		timeout: DefaultBroadcastTimeout,
		logger:  logger,
		subs:    make(map[poll.EventType]poll.SubscriberID),
	}
}

// Start subscribes to every event type. It is a no-op if already started.
func (b *Bridge) Start() {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if len(b.subs) > 0 {
		return
	}
	for _, eventType := range poll.EventTypes {
		b.subs[eventType] = b.bus.SubscribeFunc(eventType, b.forward)
	}
}

func (b *Bridge) Stop() {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	for eventType, id := range b.subs {
		b.bus.Unsubscribe(eventType, id)
	}
	b.subs = make(map[poll.EventType]poll.SubscriberID)
}

func (b *Bridge) forward(evt poll.Event) {
	msg, err := NewMessage(evt)
	if err != nil {
		b.logger.Error().Err(err).Str("type", string(evt.Type)).Msg("encoding event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.gossip.BroadcastEvent(ctx, msg); err != nil {
		b.logger.Info().Err(err).Str("type", string(evt.Type)).Msg("broadcasting event")
		return
	}
	b.logger.Debug().Str("type", string(evt.Type)).Msg("event broadcast")
}
