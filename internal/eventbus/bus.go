// Package eventbus fans committed interview events out to in-process subscribers.
package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"go-interview-backend/internal/domain"
)

const defaultBuffer = 256

type subscriber struct {
	name    string
	handler domain.EventHandler
	ch      chan domain.InterviewEvent
}

// Bus delivers each event to every subscriber on its own goroutine. A slow
// subscriber never blocks publishers: when its buffer is full the event is dropped.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscriber
	buffer int
	log    *slog.Logger
	wg     sync.WaitGroup
	closed bool
}

func New(buffer int, log *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bus{buffer: buffer, log: log}
}

// Subscribe registers handler under name. Must be called before Close.
func (b *Bus) Subscribe(name string, handler domain.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	sub := &subscriber{name: name, handler: handler, ch: make(chan domain.InterviewEvent, b.buffer)}
	b.subs = append(b.subs, sub)

	b.wg.Add(1)
	go b.run(sub)
}

func (b *Bus) run(sub *subscriber) {
	defer b.wg.Done()
	for event := range sub.ch {
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub *subscriber, event domain.InterviewEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event subscriber panicked",
				"subscriber", sub.name,
				"event", event.Type,
				"interview_id", event.InterviewID,
				"panic", r,
			)
		}
	}()
	sub.handler.Handle(context.Background(), event)
}

// Publish implements domain.EventPublisher.
func (b *Bus) Publish(_ context.Context, event domain.InterviewEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			b.log.Warn("event dropped, subscriber buffer full",
				"subscriber", sub.name,
				"event", event.Type,
				"interview_id", event.InterviewID,
			)
		}
	}
}

// Close stops accepting events and waits for subscribers to drain their buffers.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
}
