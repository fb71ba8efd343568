package coordinator

import "github.com/gamebyte/switchboard/types"

// Watch registers an observer for this conversation's stream events. Only
// events accepted from the active run are delivered; stale-run events are
// filtered before fan-out. The returned cancel func must be called when the
// observer is done. A full observer channel drops events rather than slowing
// the relay.
func (c *Coordinator) Watch(buffer int) (<-chan types.StreamEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan types.StreamEvent, buffer)

	c.mu.Lock()
	if c.watchers == nil {
		c.watchers = make(map[uint64]chan types.StreamEvent)
	}
	c.watcherSeq++
	id := c.watcherSeq
	c.watchers[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// broadcastLocked fans an accepted event out to all observers. Caller holds
// c.mu.
func (c *Coordinator) broadcastLocked(ev types.StreamEvent) {
	for _, ch := range c.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// closeWatchers disconnects all observers, ending their streams.
func (c *Coordinator) closeWatchers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.watchers {
		delete(c.watchers, id)
		close(ch)
	}
}
