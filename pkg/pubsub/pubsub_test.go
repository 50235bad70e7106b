package pubsub

import (
	"github.com/stretchr/testify/assert"
	"io"
	"log/slog"
	"sync"
	"testing"
)

type event struct {
	key   string
	value string
}

func (p *Publisher[T]) subscribers() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return len(p.clients)
}

func TestPublisher(t *testing.T) {
	p := New[event](slog.New(slog.NewTextHandler(io.Discard, nil)))

	const clients = 5
	var chs []chan event
	for range clients {
		chs = append(chs, p.Subscribe())
	}
	assert.Equal(t, clients, p.subscribers())

	var wg sync.WaitGroup
	wg.Add(len(chs))
	for _, ch := range chs {
		go func(ch chan event) {
			defer wg.Done()
			for _, want := range []string{"on", "off"} {
				assert.Equal(t, event{key: "binary_sensor.kitchen_motion", value: want}, <-ch)
			}
			p.Unsubscribe(ch)
		}(ch)
	}

	p.Publish(event{key: "binary_sensor.kitchen_motion", value: "on"})
	p.Publish(event{key: "binary_sensor.kitchen_motion", value: "off"})
	wg.Wait()
	assert.Zero(t, p.subscribers())
}
