package event

import (
	"reflect"

	"github.com/sasha-s/go-deadlock"
)

// Bus is a double-buffered event bus. Events emitted in tick N are delivered
// in tick N+1, after SwapBuffers. Emit and DispatchAll run on the game loop;
// Subscribe may be called from any goroutine during startup.
type Bus struct {
	mu       deadlock.Mutex // guards handlers
	front    map[reflect.Type][]any
	back     map[reflect.Type][]any
	order    []reflect.Type // first-emit order, so dispatch is deterministic
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{
		front:    make(map[reflect.Type][]any),
		back:     make(map[reflect.Type][]any),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Emit queues an event into the back buffer.
func Emit[T any](b *Bus, ev T) {
	t := typeKey[T]()
	if _, seen := b.back[t]; !seen {
		if _, seenFront := b.front[t]; !seenFront {
			b.order = append(b.order, t)
		}
	}
	b.back[t] = append(b.back[t], ev)
}

// Subscribe registers a handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := typeKey[T]()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// SwapBuffers makes last tick's events dispatchable and clears the back buffer.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front
	for k := range b.back {
		b.back[k] = b.back[k][:0]
	}
}

// Pending returns how many events are waiting in the front buffer.
func (b *Bus) Pending() int {
	n := 0
	for _, evs := range b.front {
		n += len(evs)
	}
	return n
}

// DispatchAll delivers the front buffer to subscribers, grouped by event type
// in the order each type was first emitted.
func (b *Bus) DispatchAll() {
	b.mu.Lock()
	handlers := make(map[reflect.Type][]func(any), len(b.handlers))
	for t, hs := range b.handlers {
		handlers[t] = hs
	}
	b.mu.Unlock()

	for _, t := range b.order {
		evs := b.front[t]
		for _, ev := range evs {
			for _, h := range handlers[t] {
				h(ev)
			}
		}
		b.front[t] = evs[:0]
	}
}
