package types

import "time"

// Mode is the dialogue state of a call. It alone decides which handler class
// may run on the next turn.
type Mode string

const (
	ModeNormal          Mode = "normal"
	ModeAwaitingOrigin  Mode = "awaiting_origin"
	ModeDeliveringSteps Mode = "delivering_steps"
	ModeOfferingSMS     Mode = "offering_sms"
	ModeAwaitingName    Mode = "awaiting_name"
)

type Event struct {
	ID      string         `json:"id"`
	CallSid string         `json:"call_sid"`
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

// MemoryEntry is one caller utterance and the model reply that answered it.
type MemoryEntry struct {
	Caller string `json:"caller"`
	Reply  string `json:"reply"`
}

type Route struct {
	Distance       string   `json:"distance"`
	Duration       string   `json:"duration"`
	RemainingSteps []string `json:"remaining_steps"`
}

type Session struct {
	CallSid        string        `json:"call_sid"`
	Mode           Mode          `json:"mode"`
	Memory         []MemoryEntry `json:"memory,omitempty"`
	CallerNumber   string        `json:"caller_number,omitempty"`
	CallerName     string        `json:"caller_name,omitempty"`
	PendingRoute   *Route        `json:"pending_route,omitempty"`
	PendingMapLink string        `json:"pending_map_link,omitempty"`
	Turns          int           `json:"turns"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
}

func NewSession(callSid string, now time.Time) *Session {
	return &Session{
		CallSid:        callSid,
		Mode:           ModeNormal,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Clone returns a deep copy so callers never share slices with the store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Memory != nil {
		out.Memory = append([]MemoryEntry(nil), s.Memory...)
	}
	if s.PendingRoute != nil {
		r := *s.PendingRoute
		r.RemainingSteps = append([]string(nil), s.PendingRoute.RemainingSteps...)
		out.PendingRoute = &r
	}
	return &out
}

// SetCallerNumber records the caller id once; later values are ignored.
func (s *Session) SetCallerNumber(from string) {
	if s.CallerNumber == "" && from != "" {
		s.CallerNumber = from
	}
}

// Remember appends an exchange and evicts the oldest entries beyond limit.
func (s *Session) Remember(caller, reply string, limit int) {
	s.Memory = append(s.Memory, MemoryEntry{Caller: caller, Reply: reply})
	if limit > 0 && len(s.Memory) > limit {
		s.Memory = append([]MemoryEntry(nil), s.Memory[len(s.Memory)-limit:]...)
	}
}
