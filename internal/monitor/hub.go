// Package monitor streams call events to operators over websockets.
package monitor

import (
	"sync"

	"yuzu/receptionist/internal/types"
)

// queueSize bounds the events buffered per watcher; a slow watcher loses
// events rather than stalling a call.
const queueSize = 64

type watcher struct {
	callSid string
	events  chan types.Event
}

// Hub fans events out to connected watchers.
type Hub struct {
	mu       sync.Mutex
	watchers map[*watcher]struct{}
}

func NewHub() *Hub { return &Hub{watchers: make(map[*watcher]struct{})} }

// add registers a watcher; an empty callSid watches every call.
func (h *Hub) add(callSid string) *watcher {
	w := &watcher{callSid: callSid, events: make(chan types.Event, queueSize)}
	h.mu.Lock()
	h.watchers[w] = struct{}{}
	gaugeWatchers.Set(float64(len(h.watchers)))
	h.mu.Unlock()
	return w
}

func (h *Hub) remove(w *watcher) {
	h.mu.Lock()
	delete(h.watchers, w)
	gaugeWatchers.Set(float64(len(h.watchers)))
	h.mu.Unlock()
}

// Publish never blocks.
func (h *Hub) Publish(evt types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		if w.callSid != "" && w.callSid != evt.CallSid {
			continue
		}
		select {
		case w.events <- evt:
		default:
			metricDropped.Inc()
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}
