package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan SegmentFinalizedEvent, 1)

	unsub := bus.Subscribe(func(e SegmentFinalizedEvent) {
		received <- e
	})
	defer unsub()

	ev := SegmentFinalizedEvent{Session: "rec-1", Path: "capture.mp4", Frames: 30}
	bus.Publish(ev)

	select {
	case got := <-received:
		if got != ev {
			t.Errorf("got %+v, want %+v", got, ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan DeviceLostEvent, 1)

	unsub := bus.Subscribe(func(e DeviceLostEvent) {
		received <- e
	})

	bus.Publish(DeviceLostEvent{Source: "screen", Attempt: 1})
	<-received

	unsub()

	bus.Publish(DeviceLostEvent{Source: "screen", Attempt: 2})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	stateReceived := make(chan bool, 1)
	dropReceived := make(chan bool, 1)

	defer bus.Subscribe(func(SessionStateChangedEvent) { stateReceived <- true })()
	defer bus.Subscribe(func(FrameDroppedEvent) { dropReceived <- true })()

	bus.Publish(SessionStateChangedEvent{State: "recording"})
	<-stateReceived

	select {
	case <-dropReceived:
		t.Fatal("drop subscriber received a state event")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("expected no-op unsubscribe")
	}
	unsub()
}

func TestBus_NilPublish(_ *testing.T) {
	var bus *Bus
	bus.Publish(FrameDroppedEvent{Queue: "encode"})
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)
	unsub := bus.Subscribe(func(FrameDroppedEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(FrameDroppedEvent{Queue: "mux"})
			}
		}()
	}
	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := New()
	ch := make(chan any, 8)
	unsub := SubscribeAll(bus, ch)
	defer unsub()

	bus.Publish(SessionStateChangedEvent{State: "recording"})
	bus.Publish(SegmentFinalizedEvent{Path: "a.mp4"})
	bus.Publish(FrameDroppedEvent{Queue: "encode"})
	bus.Publish(DeviceLostEvent{Source: "x11grab"})

	seen := make(map[uint32]bool)
	timeout := time.After(time.Second)
	for len(seen) < 4 {
		select {
		case e := <-ch:
			seen[e.(Event).Type()] = true
		case <-timeout:
			t.Fatalf("only saw %d event types", len(seen))
		}
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any)

	unsub := SubscribeToChannel[SessionStateChangedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(SessionStateChangedEvent{State: "stopped"})
		done <- true
	}()

	<-done
}
