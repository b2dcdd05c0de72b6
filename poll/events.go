package poll

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	// EventQueueSize is the buffer of each channel subscriber.
	EventQueueSize = 20
	// AsyncQueueSize bounds the events waiting for dispatch. PublishAsync
	// drops events once it is full.
	AsyncQueueSize = 1000
)

type EventType string

// One event type per state transition of the engine. The last three make the
// authorization layer auditable.
const (
	EventPollCreated         EventType = "poll.created"
	EventVoteCast            EventType = "vote.cast"
	EventPollClosed          EventType = "poll.closed"
	EventDecryptionRequested EventType = "decryption.requested"
	EventDecryptorAuthorized EventType = "decryptor.authorized"
	EventDecryptorRevoked    EventType = "decryptor.revoked"
	EventAccessGranted       EventType = "access.granted"
)

// EventTypes lists every type the engine publishes.
var EventTypes = []EventType{
	EventPollCreated,
	EventVoteCast,
	EventPollClosed,
	EventDecryptionRequested,
	EventDecryptorAuthorized,
	EventDecryptorRevoked,
	EventAccessGranted,
}

type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

func NewEvent(eventType EventType, data any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type PollCreatedEvent struct {
	PollID    uint64   `json:"pollId"`
	Title     string   `json:"title"`
	Creator   Identity `json:"creator"`
	StartTime uint64   `json:"startTime"`
	EndTime   uint64   `json:"endTime"`
}

type VoteCastEvent struct {
	PollID uint64   `json:"pollId"`
	Voter  Identity `json:"voter"`
}

type PollClosedEvent struct {
	PollID uint64 `json:"pollId"`
}

type DecryptionRequestedEvent struct {
	PollID    uint64   `json:"pollId"`
	Requester Identity `json:"requester"`
}

type DecryptorEvent struct {
	Decryptor Identity `json:"decryptor"`
	By        Identity `json:"by"`
}

type AccessGrantedEvent struct {
	PollID  uint64   `json:"pollId"`
	Option  int      `json:"option"`
	Grantee Identity `json:"grantee"`
	By      Identity `json:"by"`
}

type SubscriberID int

type EventHandlerFunc func(Event)

var _ Publisher = (*EventBus)(nil)

type queuedEvent struct {
	eventType EventType
	event     Event
}

// EventBus fans engine events out to in-process subscribers. Publish delivers
// synchronously and blocks once a subscriber's buffer is full. PublishAsync
// hands the event to a single dispatch worker and never blocks, so events
// keep their publish order and a stalled subscriber only delays the queue.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType]map[SubscriberID]*subscriber
	lastSubID   SubscriberID
	stopped     bool

	queue    chan queuedEvent
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	metrics *busMetrics
	logger  zerolog.Logger
}

// NewEventBus creates a bus and starts its dispatch worker. The registry may
// be nil to disable metrics.
func NewEventBus(registry prometheus.Registerer, logger zerolog.Logger) *EventBus {
	b := &EventBus{
		subscribers: make(map[EventType]map[SubscriberID]*subscriber),
		queue:       make(chan queuedEvent, AsyncQueueSize),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger,
	}
	if registry != nil {
		b.metrics = newBusMetrics(registry)
	}
	go b.dispatch()
	return b
}

func (b *EventBus) dispatch() {
	defer close(b.done)
	for {
		select {
		case <-b.stopCh:
			return
		case queued := <-b.queue:
			b.Publish(queued.eventType, queued.event)
		}
	}
}

type subscriber struct {
	mu       sync.RWMutex
	ch       chan Event
	quit     chan struct{}
	quitOnce sync.Once
	closed   bool
}

func newSubscriber() *subscriber {
	return &subscriber{
		ch:   make(chan Event, EventQueueSize),
		quit: make(chan struct{}),
	}
}

// deliver blocks until the event is buffered or the subscriber is closed.
func (s *subscriber) deliver(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
	case <-s.quit:
	}
}

func (s *subscriber) close() {
	// release a blocked deliver before taking the write lock
	s.quitOnce.Do(func() { close(s.quit) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Subscribe returns a channel receiving every event of the given type. The
// channel is closed on Unsubscribe or Stop.
func (b *EventBus) Subscribe(eventType EventType) (SubscriberID, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := newSubscriber()
	if b.stopped {
		sub.close()
		return 0, sub.ch
	}
	b.lastSubID++
	id := b.lastSubID
	if _, ok := b.subscribers[eventType]; !ok {
		b.subscribers[eventType] = make(map[SubscriberID]*subscriber)
	}
	b.subscribers[eventType][id] = sub
	if b.metrics != nil {
		b.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return id, sub.ch
}

// SubscribeFunc calls handler for every event of the given type from a
// dedicated goroutine, preserving publish order.
func (b *EventBus) SubscribeFunc(eventType EventType, handler EventHandlerFunc) SubscriberID {
	id, ch := b.Subscribe(eventType)
	go func() {
		for evt := range ch {
			handler(evt)
		}
	}()
	return id
}

func (b *EventBus) Unsubscribe(eventType EventType, id SubscriberID) {
	b.mu.Lock()
	sub, ok := b.subscribers[eventType][id]
	if ok {
		delete(b.subscribers[eventType], id)
		if len(b.subscribers[eventType]) == 0 {
			delete(b.subscribers, eventType)
		}
		if b.metrics != nil {
			b.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
		}
	}
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Publish delivers evt to every subscriber of eventType and returns once each
// of them has buffered it.
func (b *EventBus) Publish(eventType EventType, evt Event) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers[eventType]))
	for _, sub := range b.subscribers[eventType] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(evt)
	}
	if b.metrics != nil {
		b.metrics.events.WithLabelValues(string(eventType)).Inc()
	}
}

// PublishAsync queues evt for the dispatch worker and returns immediately. It
// returns false when the bus is stopped or the queue is full, in which case
// the event is dropped.
func (b *EventBus) PublishAsync(eventType EventType, evt Event) bool {
	select {
	case <-b.stopCh:
		return false
	default:
	}
	select {
	case b.queue <- queuedEvent{eventType: eventType, event: evt}:
		return true
	default:
		if b.metrics != nil {
			b.metrics.dropped.WithLabelValues(string(eventType)).Inc()
		}
		b.logger.Warn().
			Str("type", string(eventType)).
			Msg("event queue full, dropping event")
		return false
	}
}

// Stop halts the dispatch worker and closes every subscriber. Queued events
// that were not dispatched yet are discarded and publishing after Stop is a
// no-op.
func (b *EventBus) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })

	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[EventType]map[SubscriberID]*subscriber)
	b.stopped = true
	b.mu.Unlock()

	for _, byID := range subs {
		for _, sub := range byID {
			sub.close()
		}
	}
	<-b.done
	if b.metrics != nil {
		b.metrics.subscribers.Reset()
	}
}
