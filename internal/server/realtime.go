package server

import (
	"context"
	"sync"
	"time"
)

// RealtimeMessage is one push frame ready to be written to subscribers.
type RealtimeMessage struct {
	EventType string
	PostID    string
	Frame     []byte
	Timestamp time.Time
}

// RealtimePublisher accepts frames for fan-out.
type RealtimePublisher interface {
	Publish(message RealtimeMessage)
}

// RealtimeDispatcher fans frames out to every connected subscriber. Slow
// subscribers lose frames rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	onDrop      func()
	onJoin      func()
	onLeave     func()
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
	once   sync.Once
}

// RealtimeHooks observes subscriber churn and dropped frames.
type RealtimeHooks struct {
	OnJoin  func()
	OnLeave func()
	OnDrop  func()
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return NewRealtimeDispatcherWithHooks(RealtimeHooks{})
}

func NewRealtimeDispatcherWithHooks(hooks RealtimeHooks) *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
		onDrop:      hooks.OnDrop,
		onJoin:      hooks.OnJoin,
		onLeave:     hooks.OnLeave,
	}
}

// Subscribe registers a subscriber until ctx ends or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	cleanup := func() {
		subscriber.once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" || len(message.Frame) == 0 {
		return
	}
	d.mu.RLock()
	if len(d.subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
			if d.onDrop != nil {
				d.onDrop()
			}
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
	d.mu.Unlock()
	if d.onJoin != nil {
		d.onJoin()
	}
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	_, existed := d.subscribers[subscriberID]
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
	if existed && d.onLeave != nil {
		d.onLeave()
	}
}
