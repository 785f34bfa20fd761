package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels
// for the SSE handler's select loop. Events are dropped when ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeAll subscribes ch to every event type and returns one unsubscribe.
func SubscribeAll(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[SessionStateChangedEvent](bus, ch),
		SubscribeToChannel[SegmentFinalizedEvent](bus, ch),
		SubscribeToChannel[FrameDroppedEvent](bus, ch),
		SubscribeToChannel[DeviceLostEvent](bus, ch),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
