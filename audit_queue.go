package goAttend

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditQueue hands audit events to a sink on one background worker so request
// paths never wait on sink I/O. A nil queue discards everything.
type auditQueue struct {
	sink       AuditSink
	dropIfFull bool
	onDrop     func()

	mu       sync.RWMutex
	shut     bool
	events   chan AuditEvent
	finished chan struct{}
	dropped  atomic.Uint64
}

// newAuditQueue starts the worker. It returns nil when auditing is disabled.
// onDrop, when set, runs for every event discarded on a full buffer.
func newAuditQueue(cfg AuditConfig, sink AuditSink, onDrop func()) *auditQueue {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	q := &auditQueue{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		onDrop:     onDrop,
		events:     make(chan AuditEvent, size),
		finished:   make(chan struct{}),
	}
	go q.deliver()
	return q
}

// deliver runs until shutdown closes events, so everything queued before then
// still reaches the sink.
func (q *auditQueue) deliver() {
	defer close(q.finished)
	for event := range q.events {
		q.sink.Emit(context.Background(), event)
	}
}

// publish queues event. A full buffer either drops it or blocks until space frees
// up or ctx ends, depending on DropIfFull. Events published after shutdown are
// discarded.
func (q *auditQueue) publish(ctx context.Context, event AuditEvent) {
	if q == nil {
		return
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.shut {
		return
	}

	if q.dropIfFull {
		select {
		case q.events <- event:
		default:
			q.dropped.Add(1)
			if q.onDrop != nil {
				q.onDrop()
			}
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case q.events <- event:
	case <-ctx.Done():
	}
}

// shutdown stops intake and returns once the worker has emptied the buffer.
// Repeated calls are no-ops.
func (q *auditQueue) shutdown() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if !q.shut {
		q.shut = true
		close(q.events)
	}
	q.mu.Unlock()
	<-q.finished
}

func (q *auditQueue) droppedCount() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}
