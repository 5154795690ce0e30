package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yuzu/receptionist/internal/config"
	"yuzu/receptionist/internal/events"
	"yuzu/receptionist/internal/llm"
	"yuzu/receptionist/internal/maps"
	"yuzu/receptionist/internal/store"
	"yuzu/receptionist/internal/types"
	"yuzu/receptionist/internal/upstream"
)

const (
	testSid    = "CA0001"
	testCaller = "+18435550199"
)

type fakeNav struct {
	geocodeErr    error
	directionsErr error
	route         maps.Directions
	panicOn       string
	destinations  []string
}

func (f *fakeNav) Geocode(_ context.Context, query, _ string) (maps.LatLng, error) {
	if f.panicOn == query {
		panic("boom")
	}
	if f.geocodeErr != nil {
		return maps.LatLng{}, f.geocodeErr
	}
	return maps.LatLng{Lat: 33.6, Lng: -78.98}, nil
}

func (f *fakeNav) Directions(_ context.Context, _ maps.LatLng, destination string) (maps.Directions, error) {
	f.destinations = append(f.destinations, destination)
	if f.directionsErr != nil {
		return maps.Directions{}, f.directionsErr
	}
	return f.route, nil
}

type fakeLM struct {
	calls int
	reqs  []llm.Request
	err   error
}

func (f *fakeLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.calls++
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("answer %d", f.calls), nil
}

type fakeSMS struct {
	to, body []string
	err      error
}

func (f *fakeSMS) Send(_ context.Context, to, body string) (string, error) {
	f.to = append(f.to, to)
	f.body = append(f.body, body)
	if f.err != nil {
		return "", f.err
	}
	return "SM1", nil
}

type harness struct {
	ctl *Controller
	st  *store.MemoryStore
	ev  *events.Log
	nav *fakeNav
	lm  *fakeLM
	sms *fakeSMS
	cfg config.Config
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Load()
	cfg.Directions.Delivery = "steps"
	cfg.Voice.AskName = false
	if mutate != nil {
		mutate(&cfg)
	}
	nav := &fakeNav{route: maps.Directions{
		Distance: "4.2 mi",
		Duration: "11 mins",
		Steps:    []string{"Head south on Main St", "Turn left onto US-17 BUS S", "Destination will be on the right"},
		MapLink:  "https://www.google.com/maps/dir/?api=1",
	}}
	h := &harness{
		st:  store.NewMemory(),
		ev:  events.NewLog(),
		nav: nav,
		lm:  &fakeLM{},
		sms: &fakeSMS{},
		cfg: cfg,
	}
	h.ctl = NewController(cfg, h.st, h.ev, h.nav, h.lm, h.sms, nil)
	return h
}

func (h *harness) say(t *testing.T, text string) Result {
	t.Helper()
	return h.ctl.Turn(context.Background(), TurnEvent{CallSid: testSid, From: testCaller, Utterance: text})
}

func (h *harness) session(t *testing.T) *types.Session {
	t.Helper()
	sess, err := h.st.Get(context.Background(), testSid)
	require.NoError(t, err)
	return sess
}

func (h *harness) seed(t *testing.T, fn func(*types.Session)) {
	t.Helper()
	sess, _, err := h.st.GetOrCreate(context.Background(), testSid)
	require.NoError(t, err)
	fn(sess)
	require.NoError(t, h.st.Save(context.Background(), sess))
}

func TestIntroGreetsAndRedirectsOnSilence(t *testing.T) {
	h := newHarness(t, nil)
	res := h.ctl.Intro(context.Background(), testSid, testCaller)

	assert.Equal(t, []string{h.cfg.Voice.Greeting}, res.Speech)
	assert.Equal(t, Listen, res.Action.Kind)
	assert.Equal(t, RouteProcess, res.Action.Target)
	assert.Equal(t, RouteIntro, res.Redirect)

	sess := h.session(t)
	assert.Equal(t, types.ModeNormal, sess.Mode)
	assert.Equal(t, testCaller, sess.CallerNumber)

	evs := h.ev.List(testSid)
	require.Len(t, evs, 1)
	assert.Equal(t, "call_started", evs[0].Type)
}

func TestHoursAnsweredWithoutLanguageModel(t *testing.T) {
	h := newHarness(t, nil)
	res := h.say(t, "What are your hours")

	assert.Equal(t, []string{"We're open " + h.cfg.Business.Hours + "."}, res.Speech)
	assert.Equal(t, Listen, res.Action.Kind)
	assert.Equal(t, 0, h.lm.calls)
}

func TestStoreInfoSentences(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, []string{h.ctl.addressSentence()}, h.say(t, "what's your address").Speech)
	assert.Equal(t, []string{h.ctl.phoneSentence()}, h.say(t, "what's your phone number").Speech)
	assert.Equal(t, []string{h.ctl.landmarksSentence()}, h.say(t, "anything nearby I should look for").Speech)
	assert.Equal(t, 0, h.lm.calls)
}

func TestDirectionsPromptsForOrigin(t *testing.T) {
	h := newHarness(t, nil)
	res := h.say(t, "directions")

	require.Len(t, res.Speech, 1)
	assert.Contains(t, res.Speech[0], "Where will you be starting from?")
	assert.Equal(t, types.ModeAwaitingOrigin, h.session(t).Mode)
}

func TestOriginSuccessDeliversStepsOneAtATime(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, "directions")
	res := h.say(t, "123 Main St")

	require.Len(t, res.Speech, 2)
	assert.Contains(t, res.Speech[0], "4.2 mi")
	assert.Contains(t, res.Speech[0], "11 mins")
	assert.Equal(t, []string{h.cfg.Business.Destination}, h.nav.destinations)

	sess := h.session(t)
	assert.Equal(t, types.ModeDeliveringSteps, sess.Mode)
	require.NotNil(t, sess.PendingRoute)
	assert.Len(t, sess.PendingRoute.RemainingSteps, 3)

	res = h.say(t, "next")
	assert.Equal(t, []string{"Head south on Main St"}, res.Speech)
	assert.Equal(t, Listen, res.Action.Kind)

	// Any utterance advances while steps are pending, even a store question.
	res = h.say(t, "what are your hours")
	assert.Equal(t, []string{"Turn left onto US-17 BUS S"}, res.Speech)

	res = h.say(t, "okay next")
	assert.Equal(t, []string{"Destination will be on the right", h.ctl.arrivalSentence()}, res.Speech)
	assert.Equal(t, Hangup, res.Action.Kind)
	assert.Empty(t, h.session(t).PendingRoute.RemainingSteps)
}

func TestStepWithNothingLeftEndsCall(t *testing.T) {
	h := newHarness(t, nil)
	sess := types.NewSession(testSid, h.ctl.now())
	sess.Mode = types.ModeDeliveringSteps
	sess.PendingRoute = &types.Route{}

	res := h.ctl.handleStep(sess)
	assert.Equal(t, []string{h.ctl.arrivalSentence()}, res.Speech)
	assert.Equal(t, Hangup, res.Action.Kind)
}

func TestOriginSuccessOffersSMS(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Directions.Delivery = "sms" })
	h.say(t, "directions")
	res := h.say(t, "123 Main St")

	require.Len(t, res.Speech, 2)
	assert.Equal(t, offerSMSPrompt, res.Speech[1])
	sess := h.session(t)
	assert.Equal(t, types.ModeOfferingSMS, sess.Mode)
	assert.Equal(t, h.nav.route.MapLink, sess.PendingMapLink)
	assert.Nil(t, sess.PendingRoute)
}

func TestSMSDeliveryWithoutCallerNumberFallsBackToSteps(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Directions.Delivery = "sms" })
	h.ctl.Turn(context.Background(), TurnEvent{CallSid: testSid, Utterance: "directions"})
	h.ctl.Turn(context.Background(), TurnEvent{CallSid: testSid, Utterance: "123 Main St"})
	assert.Equal(t, types.ModeDeliveringSteps, h.session(t).Mode)
}

func TestOriginFailuresStayAwaitingOrigin(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, "directions")

	h.nav.geocodeErr = upstream.New("geocode", upstream.KindNotFound, errors.New("ZERO_RESULTS"))
	notFound := h.say(t, "the big pink building")
	assert.Contains(t, notFound.Speech[0], "couldn't find that location")
	assert.Equal(t, types.ModeAwaitingOrigin, h.session(t).Mode)

	h.nav.geocodeErr = nil
	h.nav.directionsErr = upstream.New("directions", upstream.KindUnavailable, errors.New("timeout"))
	trouble := h.say(t, "123 Main St")
	assert.Contains(t, trouble.Speech[0], "having trouble getting directions")
	assert.NotEqual(t, notFound.Speech, trouble.Speech)
	assert.Equal(t, types.ModeAwaitingOrigin, h.session(t).Mode)
	assert.Equal(t, Listen, trouble.Action.Kind)
}

func TestExitWinsWhileDeliveringSteps(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, func(s *types.Session) {
		s.Mode = types.ModeDeliveringSteps
		s.PendingRoute = &types.Route{RemainingSteps: []string{"a", "b"}}
	})
	res := h.say(t, "okay bye")

	assert.Equal(t, Hangup, res.Action.Kind)
	require.Len(t, res.Speech, 1)
	assert.Contains(t, res.Speech[0], "Goodbye")
	assert.Len(t, h.session(t).PendingRoute.RemainingSteps, 2)
}

func TestSMSConfirmYesSendsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, func(s *types.Session) {
		s.CallerNumber = testCaller
		s.Mode = types.ModeOfferingSMS
		s.PendingMapLink = "https://maps.example/link"
	})
	res := h.say(t, "yes please")

	require.Len(t, h.sms.to, 1)
	assert.Equal(t, testCaller, h.sms.to[0])
	assert.Contains(t, h.sms.body[0], "https://maps.example/link")
	assert.Contains(t, res.Speech[0], "texted you a map link")

	sess := h.session(t)
	assert.Equal(t, types.ModeNormal, sess.Mode)
	assert.Empty(t, sess.PendingMapLink)
}

func TestSMSConfirmNoSendsNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, func(s *types.Session) {
		s.CallerNumber = testCaller
		s.Mode = types.ModeOfferingSMS
		s.PendingMapLink = "https://maps.example/link"
	})
	h.say(t, "no thanks")

	assert.Empty(t, h.sms.to)
	sess := h.session(t)
	assert.Equal(t, types.ModeNormal, sess.Mode)
	assert.Empty(t, sess.PendingMapLink)
}

func TestSMSConfirmUnclearRePrompts(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, func(s *types.Session) {
		s.CallerNumber = testCaller
		s.Mode = types.ModeOfferingSMS
		s.PendingMapLink = "https://maps.example/link"
	})
	res := h.say(t, "hmm")

	assert.Contains(t, res.Speech[0], "yes or a no")
	assert.Empty(t, h.sms.to)
	sess := h.session(t)
	assert.Equal(t, types.ModeOfferingSMS, sess.Mode)
	assert.Equal(t, "https://maps.example/link", sess.PendingMapLink)
}

func TestSMSSendFailureIsSpokenAndClears(t *testing.T) {
	h := newHarness(t, nil)
	h.sms.err = upstream.New("sms", upstream.KindUnavailable, errors.New("503"))
	h.seed(t, func(s *types.Session) {
		s.CallerNumber = testCaller
		s.Mode = types.ModeOfferingSMS
		s.PendingMapLink = "https://maps.example/link"
	})
	res := h.say(t, "sure")

	assert.Contains(t, res.Speech[0], "couldn't send the text")
	assert.Equal(t, types.ModeNormal, h.session(t).Mode)
}

func TestMemoryKeepsMostRecentFive(t *testing.T) {
	h := newHarness(t, nil)
	for i := 1; i <= 7; i++ {
		h.say(t, fmt.Sprintf("question %d about screens", i))
	}
	mem := h.session(t).Memory
	require.Len(t, mem, 5)
	assert.Equal(t, "question 3 about screens", mem[0].Caller)
	assert.Equal(t, "answer 7", mem[4].Reply)

	// The last request carried the five exchanges before it.
	last := h.lm.reqs[len(h.lm.reqs)-1]
	assert.Len(t, last.Memory, 5)
	assert.Equal(t, "question 7 about screens", last.Utterance)
}

func TestLanguageModelFailureLeavesMemory(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, "do you fix cracked screens")
	h.lm.err = upstream.New("language_model", upstream.KindUnavailable, errors.New("timeout"))
	res := h.say(t, "how long does it take")

	assert.Equal(t, []string{lmApology}, res.Speech)
	assert.Equal(t, Listen, res.Action.Kind)
	assert.Len(t, h.session(t).Memory, 1)
}

func TestSilenceRePromptsForCurrentMode(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, func(s *types.Session) {
		s.Mode = types.ModeDeliveringSteps
		s.PendingRoute = &types.Route{RemainingSteps: []string{"a"}}
	})
	res := h.say(t, "")

	assert.Equal(t, Listen, res.Action.Kind)
	assert.Contains(t, res.Speech[0], "Say next")
	assert.Len(t, h.session(t).PendingRoute.RemainingSteps, 1)
}

func TestHandlerPanicBecomesApology(t *testing.T) {
	h := newHarness(t, nil)
	h.nav.panicOn = "kaboom street"
	h.say(t, "directions")
	res := h.say(t, "kaboom street")

	assert.Equal(t, Listen, res.Action.Kind)
	assert.Contains(t, res.Speech[0], "something went wrong")
	assert.Equal(t, types.ModeAwaitingOrigin, h.session(t).Mode)
}

func TestNameCapture(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Voice.AskName = true })
	intro := h.ctl.Intro(context.Background(), testSid, testCaller)
	assert.Equal(t, RouteName, intro.Action.Target)
	assert.Equal(t, types.ModeAwaitingName, h.session(t).Mode)

	res := h.ctl.Name(context.Background(), TurnEvent{CallSid: testSid, Utterance: "hi, this is sam"})
	assert.Equal(t, RouteProcess, res.Action.Target)
	assert.True(t, strings.Contains(res.Speech[0], "Sam"))

	sess := h.session(t)
	assert.Equal(t, "Sam", sess.CallerName)
	assert.Equal(t, types.ModeNormal, sess.Mode)

	// Set once.
	h.say(t, "my name is Alex and I need a battery")
	assert.Equal(t, "Sam", h.session(t).CallerName)
	assert.Contains(t, h.lm.reqs[0].System, "Sam")
}

func TestCallbackRequestDoesNotSetName(t *testing.T) {
	h := newHarness(t, nil)
	h.ctl.Intro(context.Background(), testSid, testCaller)
	h.say(t, "can you call me back when my phone is ready")
	assert.Empty(t, h.session(t).CallerName)
}

func TestExtractName(t *testing.T) {
	cases := []struct {
		text  string
		asked bool
		want  string
	}{
		{"my name is jordan", false, "Jordan"},
		{"I'm looking for directions", false, ""},
		{"I'm Taylor", true, "Taylor"},
		{"Chris", true, "Chris"},
		{"uh I'd rather not say that right now", true, ""},
		{"can you call me back when my phone is ready", false, ""},
		{"call me back later", true, ""},
		{"call me Max", true, "Max"},
		{"call me Max", false, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, extractName(tc.text, tc.asked), tc.text)
	}
}

func TestExpireIdleDropsSessionAndEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.ctl.Intro(context.Background(), testSid, testCaller)
	h.say(t, "what are your hours")
	require.NotEmpty(t, h.ev.List(testSid))

	time.Sleep(10 * time.Millisecond)
	sessions, logs, err := h.ctl.ExpireIdle(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, sessions)
	assert.Equal(t, 1, logs)

	_, err = h.st.Get(context.Background(), testSid)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, h.ev.List(testSid))
}

func TestExpireIdleKeepsActiveCalls(t *testing.T) {
	h := newHarness(t, nil)
	h.ctl.Intro(context.Background(), testSid, testCaller)
	h.say(t, "what are your hours")

	sessions, logs, err := h.ctl.ExpireIdle(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, sessions)
	assert.Zero(t, logs)
	assert.NotEmpty(t, h.ev.List(testSid))
}

func TestEndEvictsSessionAndEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.ctl.Intro(context.Background(), testSid, testCaller)
	h.say(t, "what are your hours")

	var seen []string
	unsub := h.ev.Subscribe(func(e types.Event) { seen = append(seen, e.Type) })
	defer unsub()

	h.ctl.End(context.Background(), testSid, "completed")
	_, err := h.st.Get(context.Background(), testSid)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, h.ev.List(testSid))
	assert.Equal(t, []string{"call_ended"}, seen)

	// A second status callback for the same call is harmless.
	h.ctl.End(context.Background(), testSid, "completed")
}

func TestTurnAppendsEvent(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, "what are your hours")
	evs := h.ev.List(testSid)
	require.Len(t, evs, 1)
	assert.Equal(t, "turn", evs[0].Type)
	assert.Equal(t, "hours", evs[0].Payload["handler"])
	assert.Equal(t, 1, h.session(t).Turns)
}
