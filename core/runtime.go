package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/voxprep/voxprep-core/core/transport"
)

const sessionEventQueueCapacity = 32

type queuedServerEvent struct {
	event    transport.ServerEvent
	queuedAt time.Time
}

// sessionRuntime serializes all inbound transport events through one queue
// and one consumer goroutine, so handlers never observe interleaved state.
// One runtime serves exactly one session; a new Start creates a new runtime.
type sessionRuntime struct {
	queue   chan queuedServerEvent
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once

	started atomic.Bool
}

func newSessionRuntime() *sessionRuntime {
	return &sessionRuntime{
		queue:   make(chan queuedServerEvent, sessionEventQueueCapacity),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (runtime *sessionRuntime) start(process func(event transport.ServerEvent)) (started bool) {
	if runtime == nil || runtime.isClosed() {
		return false
	}

	runtime.startOnce.Do(func() {
		if runtime.isClosed() {
			return
		}

		started = true
		runtime.started.Store(true)
		go func() {
			defer close(runtime.done)

			for {
				select {
				case <-runtime.closeCh:
					return
				case queuedEvent := <-runtime.queue:
					if runtime.isClosed() {
						return
					}
					runtime.processQueuedEvent(queuedEvent, process)
				}
			}
		}()
	})

	return started
}

func (runtime *sessionRuntime) processQueuedEvent(queuedEvent queuedServerEvent, process func(event transport.ServerEvent)) {
	queuedTime := time.Since(queuedEvent.queuedAt).Seconds()
	_, span := tracer.Start(context.Background(), "process session event")
	span.SetAttributes(
		attribute.String("event.type", queuedEvent.event.Type),
		attribute.Float64("event.queued_time", queuedTime),
	)
	defer span.End()

	process(queuedEvent.event)
}

func (runtime *sessionRuntime) enqueue(event transport.ServerEvent) bool {
	if runtime == nil || runtime.isClosed() {
		return false
	}

	queueItem := queuedServerEvent{event: event, queuedAt: time.Now()}
	select {
	case <-runtime.closeCh:
		return false
	case runtime.queue <- queueItem:
		return true
	}
}

func (runtime *sessionRuntime) end() {
	if runtime == nil {
		return
	}

	runtime.endOnce.Do(func() {
		close(runtime.closeCh)
	})
}

func (runtime *sessionRuntime) waitUntilEnded() {
	if runtime == nil {
		return
	}

	if runtime.started.Load() {
		<-runtime.done
	}
}

func (runtime *sessionRuntime) isClosed() bool {
	if runtime == nil {
		return false
	}

	select {
	case <-runtime.closeCh:
		return true
	default:
		return false
	}
}
