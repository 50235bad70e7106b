// Package pubsub fans out published values to all subscribers.
package pubsub

import (
	"log/slog"
	"sync"
)

// DefaultBuffer is the channel capacity of each subscriber.
const DefaultBuffer = 16

// Publisher sends every published value to all subscribers. Publish blocks until every subscriber has room for
// the value, so a subscriber must keep reading its channel until it unsubscribes.
type Publisher[T any] struct {
	clients map[chan T]struct{}
	logger  *slog.Logger
	buffer  int
	lock    sync.RWMutex
}

// New returns a new Publisher
func New[T any](logger *slog.Logger) *Publisher[T] {
	return &Publisher[T]{
		clients: make(map[chan T]struct{}),
		logger:  logger,
		buffer:  DefaultBuffer,
	}
}

// Subscribe registers the caller and returns the channel on which it receives published values.
func (p *Publisher[T]) Subscribe() chan T {
	p.lock.Lock()
	defer p.lock.Unlock()
	ch := make(chan T, p.buffer)
	p.clients[ch] = struct{}{}
	p.logger.Debug("subscriber added", slog.Int("subscribers", len(p.clients)))
	return ch
}

// Unsubscribe removes the registered client/channel.
func (p *Publisher[T]) Unsubscribe(ch chan T) {
	// keep draining ch, so a Publish blocked on it can release its lock
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-ch:
			case <-stop:
				return
			}
		}
	}()

	p.lock.Lock()
	defer p.lock.Unlock()
	delete(p.clients, ch)
	p.logger.Debug("subscriber removed", slog.Int("subscribers", len(p.clients)))
}

// Publish sends info to all registered clients.
func (p *Publisher[T]) Publish(info T) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	for ch := range p.clients {
		ch <- info
	}
}
