package journal

import "sync"

// Journal keeps per-order event history in memory and fans events out to
// subscribers (persistence writer, websocket feed, cache invalidation).
type Journal struct {
	mu     sync.RWMutex
	events map[uint64][]*OrderEvent
	subs   []chan *OrderEvent
}

func NewJournal() *Journal {
	return &Journal{
		events: make(map[uint64][]*OrderEvent),
	}
}

func (j *Journal) Record(ev *OrderEvent) {
	j.mu.Lock()
	j.events[ev.OrderID] = append(j.events[ev.OrderID], ev)
	subs := j.subs
	j.mu.Unlock()

	for _, ch := range subs {
		// slow subscribers drop events rather than stall the ledger
		select {
		case ch <- ev:
		default:
		}
	}
}

func (j *Journal) History(orderID uint64) []*OrderEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()

	history := make([]*OrderEvent, len(j.events[orderID]))
	copy(history, j.events[orderID])
	return history
}

// Subscribe returns a buffered channel receiving every future event.
func (j *Journal) Subscribe() <-chan *OrderEvent {
	ch := make(chan *OrderEvent, 256)
	j.mu.Lock()
	j.subs = append(j.subs, ch)
	j.mu.Unlock()
	return ch
}
