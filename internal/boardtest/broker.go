package boardtest

import "sync"

// broker fans push event payloads out to connected SSE clients. Slow
// clients drop events rather than blocking the publisher.
type broker struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[chan []byte]struct{})}
}

func (b *broker) subscribe() chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *broker) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *broker) publish(data []byte) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- data:
		default:
		}
	}
	b.mu.Unlock()
}
