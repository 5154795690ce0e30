package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"yuzu/receptionist/internal/types"
)

// maxEvents caps the log kept per call.
const maxEvents = 200

// Log keeps a bounded, per-call list of events and fans new events out to
// subscribers.
type Log struct {
	mu     sync.RWMutex
	byCall map[string][]types.Event

	subMu sync.RWMutex
	subs  map[int]func(types.Event)
	next  int

	now func() time.Time
}

func NewLog() *Log {
	return &Log{
		byCall: make(map[string][]types.Event),
		subs:   make(map[int]func(types.Event)),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *Log) Append(callSid, typ string, payload map[string]any) types.Event {
	evt := types.Event{
		ID:      uuid.NewString(),
		CallSid: callSid,
		Type:    typ,
		Ts:      l.now(),
		Payload: payload,
	}
	l.mu.Lock()
	l.byCall[callSid] = append(l.byCall[callSid], evt)
	if n := len(l.byCall[callSid]); n > maxEvents {
		// Keep room for the truncation marker so the total stays at maxEvents.
		keep := maxEvents - 1
		l.byCall[callSid] = append([]types.Event(nil), l.byCall[callSid][n-keep:]...)
		l.byCall[callSid] = append(l.byCall[callSid], types.Event{
			ID:      uuid.NewString(),
			CallSid: callSid,
			Type:    "events_truncated",
			Ts:      l.now(),
			Payload: map[string]any{"dropped": n - keep, "kept": keep},
		})
	}
	l.mu.Unlock()

	l.subMu.RLock()
	for _, fn := range l.subs {
		fn(evt)
	}
	l.subMu.RUnlock()
	return evt
}

func (l *Log) List(callSid string) []types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.byCall[callSid]
	out := make([]types.Event, len(src))
	copy(out, src)
	return out
}

func (l *Log) Forget(callSid string) {
	l.mu.Lock()
	delete(l.byCall, callSid)
	l.mu.Unlock()
}

// PruneIdle drops the log of every call whose newest event is older than
// idle and returns the number of calls dropped.
func (l *Log) PruneIdle(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for sid, evts := range l.byCall {
		if len(evts) == 0 || evts[len(evts)-1].Ts.Before(cutoff) {
			delete(l.byCall, sid)
			n++
		}
	}
	return n
}

// Subscribe registers fn for every future event. fn runs on the appending
// goroutine and must not block. The returned func unsubscribes.
func (l *Log) Subscribe(fn func(types.Event)) func() {
	l.subMu.Lock()
	id := l.next
	l.next++
	l.subs[id] = fn
	l.subMu.Unlock()
	return func() {
		l.subMu.Lock()
		delete(l.subs, id)
		l.subMu.Unlock()
	}
}
