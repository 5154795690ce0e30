package dialogue

// Provider callback routes.
const (
	RouteIntro   = "/voice/outbound/intro"
	RouteProcess = "/voice/outbound/process"
	RouteName    = "/voice/outbound/name"
	RouteStatus  = "/voice/outbound/status"
)

type ActionKind int

const (
	Listen ActionKind = iota
	Hangup
)

func (k ActionKind) String() string {
	if k == Hangup {
		return "hangup"
	}
	return "listen"
}

// Action is what the call does after the speech is played.
type Action struct {
	Kind           ActionKind
	TimeoutSeconds int
	Hints          []string
	// Target is the route the next utterance is posted to.
	Target string
}

// Result is the outcome of one turn.
type Result struct {
	Speech []string
	Action Action
	// Redirect, when set, is followed if the caller says nothing; otherwise
	// an empty result is posted to Action.Target.
	Redirect string
	// PauseSeconds is inserted before Redirect.
	PauseSeconds int
}
