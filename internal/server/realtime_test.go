package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()

	message := RealtimeMessage{
		EventType: "postCreated",
		PostID:    "post-a",
		Frame:     []byte(`{"type":"postCreated","payload":{"id":"post-a"}}`),
		Timestamp: time.Now().UTC(),
	}
	dispatcher.Publish(message)

	select {
	case received := <-stream:
		if received.EventType != "postCreated" {
			t.Fatalf("expected event type postCreated, got %s", received.EventType)
		}
		if string(received.Frame) != string(message.Frame) {
			t.Fatalf("unexpected frame %s", received.Frame)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIgnoresEmptyMessages(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{EventType: "postCreated"})
	dispatcher.Publish(RealtimeMessage{Frame: []byte("{}")})

	select {
	case <-stream:
		t.Fatal("did not expect incomplete messages to be delivered")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRealtimeDispatcherTracksSubscribersAndDrops(t *testing.T) {
	var joined, left, dropped int32
	dispatcher := NewRealtimeDispatcherWithHooks(RealtimeHooks{
		OnJoin:  func() { atomic.AddInt32(&joined, 1) },
		OnLeave: func() { atomic.AddInt32(&left, 1) },
		OnDrop:  func() { atomic.AddInt32(&dropped, 1) },
	})
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx)
	if dispatcher.SubscriberCount() != 1 {
		t.Fatalf("expected one subscriber, got %d", dispatcher.SubscriberCount())
	}

	for index := 0; index < dispatcher.bufferSize+3; index++ {
		dispatcher.Publish(RealtimeMessage{EventType: "postUpdated", Frame: []byte("{}")})
	}
	if got := atomic.LoadInt32(&dropped); got != 3 {
		t.Fatalf("expected 3 dropped frames, got %d", got)
	}

	cleanup()
	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.SubscriberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&joined) != 1 || atomic.LoadInt32(&left) != 1 {
		t.Fatalf("expected one join and one leave, got %d/%d", joined, left)
	}
}
