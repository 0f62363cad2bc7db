package journal

import (
	"testing"
	"time"
)

func newEvent(orderID uint64, typ EventType, filled int64) *OrderEvent {
	return &OrderEvent{
		EventID:   NewEventID(orderID, typ, filled),
		OrderID:   orderID,
		Type:      typ,
		Filled:    filled,
		Timestamp: time.Now(),
	}
}

func TestHistoryPreservesOrder(t *testing.T) {
	j := NewJournal()
	j.Record(newEvent(1, EventPlaced, 0))
	j.Record(newEvent(1, EventFilled, 40))
	j.Record(newEvent(2, EventPlaced, 0))
	j.Record(newEvent(1, EventFilled, 100))

	history := j.History(1)
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[0].Type != EventPlaced || history[2].Filled != 100 {
		t.Errorf("unexpected history: %+v", history)
	}
	if len(j.History(2)) != 1 {
		t.Errorf("order 2 history polluted")
	}
	if len(j.History(3)) != 0 {
		t.Errorf("unknown order has history")
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	j := NewJournal()
	ch := j.Subscribe()

	j.Record(newEvent(1, EventPlaced, 0))

	select {
	case ev := <-ch:
		if ev.OrderID != 1 || ev.Type != EventPlaced {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	j := NewJournal()
	j.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			j.Record(newEvent(uint64(i), EventPlaced, 0))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a slow subscriber")
	}
}

func TestEventIDShape(t *testing.T) {
	id := NewEventID(7, EventFilled, 40)
	if id != "7-Filled-40" {
		t.Errorf("event id = %q", id)
	}
}
