// Package dialogue runs the per-call state machine: it loads a call session,
// asks the intent resolver which handler owns the turn, runs that handler and
// persists the resulting mode.
package dialogue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yuzu/receptionist/internal/config"
	"yuzu/receptionist/internal/events"
	"yuzu/receptionist/internal/intent"
	"yuzu/receptionist/internal/llm"
	"yuzu/receptionist/internal/maps"
	"yuzu/receptionist/internal/store"
	"yuzu/receptionist/internal/types"
)

// Navigator resolves a spoken starting point and routes it to a destination.
type Navigator interface {
	Geocode(ctx context.Context, query, region string) (maps.LatLng, error)
	Directions(ctx context.Context, origin maps.LatLng, destination string) (maps.Directions, error)
}

type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

type Messenger interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// TurnEvent is one provider callback carrying a caller utterance.
type TurnEvent struct {
	CallSid   string
	From      string
	Utterance string
}

type Controller struct {
	cfg    config.Config
	store  store.Store
	events *events.Log
	nav    Navigator
	llm    Completer
	sms    Messenger
	log    *zap.Logger
	now    func() time.Time
}

func NewController(cfg config.Config, st store.Store, ev *events.Log, nav Navigator, lm Completer, sms Messenger, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		cfg:    cfg,
		store:  st,
		events: ev,
		nav:    nav,
		llm:    lm,
		sms:    sms,
		log:    log,
		now:    time.Now,
	}
}

// Intro greets a new call and starts listening. Silence redirects back here.
func (c *Controller) Intro(ctx context.Context, callSid, from string) Result {
	log := c.log.With(zap.String("call_sid", callSid))
	res := Result{
		Speech:       []string{c.cfg.Voice.Greeting},
		Action:       c.listenAction(RouteProcess),
		Redirect:     RouteIntro,
		PauseSeconds: 1,
	}

	sess, created, err := c.store.GetOrCreate(ctx, callSid)
	if err != nil {
		log.Error("session load failed", zap.Error(err))
		return res
	}
	sess.SetCallerNumber(from)
	if c.cfg.Voice.AskName && sess.CallerName == "" {
		c.setMode(sess, types.ModeAwaitingName)
		res.Speech = []string{"Hi, thanks for calling " + c.cfg.Business.Name + ". Who am I speaking with?"}
		res.Action = c.listenAction(RouteName)
	}
	sess.LastActivityAt = c.now().UTC()
	if err := c.store.Save(ctx, sess); err != nil {
		log.Error("session save failed", zap.Error(err))
	}
	if created {
		log.Info("call started", zap.Bool("caller_id", sess.CallerNumber != ""))
		c.emit(callSid, "call_started", map[string]any{"from": sess.CallerNumber})
	}
	return res
}

// Turn handles one utterance posted to the process route.
func (c *Controller) Turn(ctx context.Context, ev TurnEvent) Result {
	return c.run(ctx, ev, false)
}

// Name handles an utterance posted to the name-capture route. Whatever the
// stored mode, the turn is treated as a name answer unless it is an exit.
func (c *Controller) Name(ctx context.Context, ev TurnEvent) Result {
	return c.run(ctx, ev, true)
}

// End evicts the session of a finished call.
func (c *Controller) End(ctx context.Context, callSid, status string) {
	log := c.log.With(zap.String("call_sid", callSid), zap.String("status", status))
	if err := c.store.Delete(ctx, callSid); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error("session evict failed", zap.Error(err))
	}
	c.emit(callSid, "call_ended", map[string]any{"status": status})
	if c.events != nil {
		c.events.Forget(callSid)
	}
	log.Info("call ended")
}

// ExpireIdle evicts sessions idle for longer than idle and drops event logs
// that have gone quiet for as long. Calls whose sessions expired in an
// external store are covered by the event log's own activity.
func (c *Controller) ExpireIdle(ctx context.Context, idle time.Duration) (sessions, logs int, err error) {
	sessions, err = c.store.ExpireIdle(ctx, idle)
	if c.events != nil {
		logs = c.events.PruneIdle(idle)
	}
	return sessions, logs, err
}

func (c *Controller) run(ctx context.Context, ev TurnEvent, nameRoute bool) Result {
	log := c.log.With(zap.String("call_sid", ev.CallSid))
	sess, _, err := c.store.GetOrCreate(ctx, ev.CallSid)
	if err != nil {
		log.Error("session load failed", zap.Error(err))
		return c.apology()
	}
	sess.SetCallerNumber(ev.From)
	if nameRoute && sess.Mode != types.ModeAwaitingName {
		c.setMode(sess, types.ModeAwaitingName)
	}

	from := sess.Mode
	id := intent.Resolve(sess.Mode, ev.Utterance)
	if id != intent.Name {
		c.captureName(sess, ev.Utterance, false)
	}

	before := sess.Clone()
	res, ok := c.dispatch(ctx, log, id, sess, ev.Utterance)
	if !ok {
		sess = before
	}

	sess.Turns++
	sess.LastActivityAt = c.now().UTC()
	if err := c.store.Save(ctx, sess); err != nil {
		log.Error("session save failed", zap.Error(err))
	}

	metricTurns.WithLabelValues(string(id)).Inc()
	turnID := uuid.NewString()
	log.Info("turn",
		zap.String("turn_id", turnID),
		zap.String("handler", string(id)),
		zap.String("mode_from", string(from)),
		zap.String("mode_to", string(sess.Mode)),
		zap.Stringer("action", res.Action.Kind),
	)
	c.emit(ev.CallSid, "turn", map[string]any{
		"turn_id":   turnID,
		"utterance": ev.Utterance,
		"handler":   string(id),
		"mode_from": string(from),
		"mode_to":   string(sess.Mode),
		"speech":    res.Speech,
		"action":    res.Action.Kind.String(),
	})
	return res
}

// dispatch runs a handler and converts a panic into an apology; ok is false
// when the handler did not complete.
func (c *Controller) dispatch(ctx context.Context, log *zap.Logger, id intent.HandlerID, sess *types.Session, utterance string) (res Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			metricHandlerPanics.Inc()
			log.Error("handler panic", zap.String("handler", string(id)), zap.Any("panic", r))
			res, ok = c.apology(), false
		}
	}()

	switch id {
	case intent.Exit:
		return c.handleExit(), true
	case intent.NoInput:
		return c.handleNoInput(sess), true
	case intent.Step:
		return c.handleStep(sess), true
	case intent.Origin:
		return c.handleOrigin(ctx, log, sess, utterance), true
	case intent.SMSConfirm:
		return c.handleSMSConfirm(ctx, log, sess, utterance), true
	case intent.Name:
		return c.handleName(sess, utterance), true
	case intent.Directions:
		return c.handleDirections(sess), true
	case intent.Hours, intent.Address, intent.Phone, intent.Landmarks:
		return c.handleStoreInfo(sess, id), true
	default:
		return c.handleFallback(ctx, log, sess, utterance), true
	}
}

func (c *Controller) setMode(sess *types.Session, to types.Mode) {
	from := sess.Mode
	if from == to {
		return
	}
	metricModeTransitions.WithLabelValues(string(from), string(to)).Inc()
	sess.Mode = to
}

func (c *Controller) listenAction(target string) Action {
	return Action{
		Kind:           Listen,
		TimeoutSeconds: c.cfg.Voice.GatherTimeout,
		Hints:          c.cfg.Voice.Hints,
		Target:         target,
	}
}

// listen keeps the conversation going; name capture posts to its own route.
func (c *Controller) listen(sess *types.Session, speech ...string) Result {
	target := RouteProcess
	if sess != nil && sess.Mode == types.ModeAwaitingName {
		target = RouteName
	}
	return Result{Speech: speech, Action: c.listenAction(target)}
}

func (c *Controller) hangup(speech ...string) Result {
	return Result{Speech: speech, Action: Action{Kind: Hangup}}
}

func (c *Controller) apology() Result {
	return c.listen(nil, "Sorry, something went wrong on my end. Could you say that again?")
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Upstream.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Upstream.Timeout)
}

func (c *Controller) emit(callSid, typ string, payload map[string]any) {
	if c.events == nil {
		return
	}
	c.events.Append(callSid, typ, payload)
}
