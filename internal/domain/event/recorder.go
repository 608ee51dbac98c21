package event

import "sync"

// MaxRecorded caps the recorder's in-memory list. The recorder is a
// synchronous hand-off point, not a durable outbox: when the cap is reached
// the oldest event gives way, so a consumer that never drains (the server
// fans events out through the dispatcher instead) holds at most the most
// recent window rather than one entry per mutation for the life of the
// process.
const MaxRecorded = 256

// Recorder accumulates domain events in memory, scoped to one service
// instance. Events recorded here do not survive a crash; callers wanting
// delivery guarantees must drain and forward them within their own unit of
// work, before MaxRecorded newer events have been recorded on top.
type Recorder struct {
	mu      sync.Mutex
	events  []Event
	evicted uint64
}

// NewRecorder creates an empty event recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends an event, evicting the oldest one when the list is full.
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == MaxRecorded {
		copy(r.events, r.events[1:])
		r.events[len(r.events)-1] = e
		r.evicted++
		return
	}
	r.events = append(r.events, e)
}

// Events returns a copy of the accumulated events without clearing them.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Drain returns the accumulated events and clears the list.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// Len returns the number of accumulated events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Evicted returns how many events were discarded to stay within MaxRecorded.
func (r *Recorder) Evicted() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}
