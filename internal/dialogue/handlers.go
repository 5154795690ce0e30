package dialogue

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"yuzu/receptionist/internal/intent"
	"yuzu/receptionist/internal/llm"
	"yuzu/receptionist/internal/types"
	"yuzu/receptionist/internal/upstream"
)

const (
	lmApology      = "I'm having trouble accessing information right now. Could you ask again?"
	offerSMSPrompt = "Would you like me to text you a map link?"
	stepsPrompt    = "I'll read the directions one step at a time. Say next when you're ready."
)

var (
	noRe  = regexp.MustCompile(`\b(no|nope|nah|not|don't|dont)\b`)
	yesRe = regexp.MustCompile(`\b(yes|yeah|yep|yup|sure|please|ok|okay|absolutely|go ahead|text me|send it)\b`)

	// Explicit introductions are picked up on any turn.
	introRe = regexp.MustCompile(`(?i)\b(?:my name is|my name's)\s+([a-z][a-z'\-]*)`)
	// Looser forms are only trusted when the caller was asked for a name.
	answerRe = regexp.MustCompile(`(?i)\b(?:this is|i'm|i am|it's|its|call me)\s+([a-z][a-z'\-]*)`)
)

// notNames are words that follow the looser forms in ordinary requests.
var notNames = map[string]bool{
	"a": true, "an": true, "the": true, "back": true, "later": true, "when": true,
	"about": true, "looking": true, "calling": true, "trying": true, "just": true,
	"not": true, "here": true, "at": true, "on": true, "in": true,
}

func (c *Controller) hoursSentence() string {
	return fmt.Sprintf("We're open %s.", c.cfg.Business.Hours)
}

func (c *Controller) addressSentence() string {
	return fmt.Sprintf("We're located at %s.", c.cfg.Business.Address)
}

func (c *Controller) phoneSentence() string {
	return fmt.Sprintf("You can reach us at %s.", c.cfg.Business.Phone)
}

func (c *Controller) landmarksSentence() string {
	return fmt.Sprintf("We're %s.", c.cfg.Business.Landmarks)
}

func (c *Controller) arrivalSentence() string {
	return fmt.Sprintf("That's the last step. You'll arrive at %s, %s. See you soon, goodbye!", c.cfg.Business.Name, c.cfg.Business.Address)
}

func (c *Controller) handleExit() Result {
	return c.hangup(fmt.Sprintf("Thanks for calling %s. Goodbye!", c.cfg.Business.Name))
}

func (c *Controller) handleStoreInfo(sess *types.Session, id intent.HandlerID) Result {
	switch id {
	case intent.Hours:
		return c.listen(sess, c.hoursSentence())
	case intent.Address:
		return c.listen(sess, c.addressSentence())
	case intent.Phone:
		return c.listen(sess, c.phoneSentence())
	default:
		return c.listen(sess, c.landmarksSentence())
	}
}

// handleNoInput re-prompts for whatever the current mode is waiting on.
func (c *Controller) handleNoInput(sess *types.Session) Result {
	switch sess.Mode {
	case types.ModeAwaitingOrigin:
		return c.listen(sess, "Sorry, I didn't catch that. Where will you be starting from?")
	case types.ModeDeliveringSteps:
		return c.listen(sess, "Say next when you're ready for the next step.")
	case types.ModeOfferingSMS:
		return c.listen(sess, offerSMSPrompt+" Please say yes or no.")
	case types.ModeAwaitingName:
		return c.listen(sess, "Sorry, I didn't catch your name. Could you say it again?")
	default:
		return c.listen(sess, "Sorry, I didn't catch that. Could you repeat your question?")
	}
}

func (c *Controller) handleDirections(sess *types.Session) Result {
	c.setMode(sess, types.ModeAwaitingOrigin)
	sess.PendingRoute = nil
	sess.PendingMapLink = ""
	return c.listen(sess, "Sure. Where will you be starting from? You can say an address, a business, or a nearby landmark.")
}

func (c *Controller) handleOrigin(ctx context.Context, log *zap.Logger, sess *types.Session, utterance string) Result {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	origin, err := c.nav.Geocode(ctx, utterance, c.cfg.Maps.Region)
	observe("geocode", start)
	if err != nil {
		kind := c.failure(log, "geocode", err)
		if kind == upstream.KindNotFound {
			return c.listen(sess, "Sorry, I couldn't find that location. Could you tell me your starting address again, or a nearby landmark?")
		}
		return c.listen(sess, "Sorry, I'm having trouble getting directions right now. Could you tell me your starting location again?")
	}

	start = time.Now()
	route, err := c.nav.Directions(ctx, origin, c.cfg.Business.Destination)
	observe("directions", start)
	if err != nil {
		kind := c.failure(log, "directions", err)
		if kind == upstream.KindNotFound {
			return c.listen(sess, "Sorry, I couldn't find a driving route from there. Could you give me a different starting point?")
		}
		return c.listen(sess, "Sorry, I'm having trouble getting directions right now. Could you tell me your starting location again?")
	}

	eta := fmt.Sprintf("From there, we're about %s away, roughly %s by car.", route.Distance, route.Duration)
	if c.cfg.Directions.Delivery == "sms" && sess.CallerNumber != "" && route.MapLink != "" {
		c.setMode(sess, types.ModeOfferingSMS)
		sess.PendingRoute = nil
		sess.PendingMapLink = route.MapLink
		return c.listen(sess, eta, offerSMSPrompt)
	}

	c.setMode(sess, types.ModeDeliveringSteps)
	sess.PendingMapLink = ""
	sess.PendingRoute = &types.Route{
		Distance:       route.Distance,
		Duration:       route.Duration,
		RemainingSteps: append([]string(nil), route.Steps...),
	}
	return c.listen(sess, eta, stepsPrompt)
}

// handleStep reads exactly one pending step per turn. The last step is
// followed by the arrival message and the call ends.
func (c *Controller) handleStep(sess *types.Session) Result {
	route := sess.PendingRoute
	if route == nil || len(route.RemainingSteps) == 0 {
		return c.hangup(c.arrivalSentence())
	}
	step := route.RemainingSteps[0]
	route.RemainingSteps = route.RemainingSteps[1:]
	if len(route.RemainingSteps) == 0 {
		return c.hangup(step, c.arrivalSentence())
	}
	return c.listen(sess, step)
}

func (c *Controller) handleSMSConfirm(ctx context.Context, log *zap.Logger, sess *types.Session, utterance string) Result {
	text := strings.ToLower(utterance)
	switch {
	case noRe.MatchString(text):
		c.clearOffer(sess)
		return c.listen(sess, "No problem. Is there anything else I can help you with?")
	case yesRe.MatchString(text):
	default:
		return c.listen(sess, "Sorry, was that a yes or a no? "+offerSMSPrompt)
	}

	link := sess.PendingMapLink
	c.clearOffer(sess)
	if sess.CallerNumber == "" || link == "" {
		return c.listen(sess, "Sorry, I don't have a number to text. "+c.addressSentence()+" Is there anything else I can help you with?")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	sid, err := c.sms.Send(ctx, sess.CallerNumber, fmt.Sprintf("Directions to %s: %s", c.cfg.Business.Name, link))
	observe("sms", start)
	if err != nil {
		c.failure(log, "sms", err)
		return c.listen(sess, "Sorry, I couldn't send the text right now. "+c.addressSentence()+" Is there anything else I can help you with?")
	}
	metricSMSSent.Inc()
	log.Info("map link sent", zap.String("message_sid", sid))
	return c.listen(sess, "Done! I've texted you a map link. Is there anything else I can help you with?")
}

func (c *Controller) clearOffer(sess *types.Session) {
	sess.PendingMapLink = ""
	c.setMode(sess, types.ModeNormal)
}

func (c *Controller) handleName(sess *types.Session, utterance string) Result {
	c.captureName(sess, utterance, true)
	c.setMode(sess, types.ModeNormal)
	if sess.CallerName == "" {
		return c.listen(sess, "That's okay. How can I help you today?")
	}
	return c.listen(sess, fmt.Sprintf("Nice to meet you, %s. How can I help you today?", sess.CallerName))
}

// captureName sets the caller name at most once per call.
func (c *Controller) captureName(sess *types.Session, utterance string, asked bool) {
	if sess.CallerName != "" {
		return
	}
	if name := extractName(utterance, asked); name != "" {
		sess.CallerName = name
	}
}

func extractName(utterance string, asked bool) string {
	text := strings.TrimSpace(utterance)
	if m := introRe.FindStringSubmatch(text); m != nil {
		return titleCase(m[1])
	}
	if !asked {
		return ""
	}
	if m := answerRe.FindStringSubmatch(text); m != nil {
		if notNames[strings.ToLower(m[1])] {
			return ""
		}
		return titleCase(m[1])
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\'' && r != '-'
	})
	if len(words) == 0 || len(words) > 3 {
		return ""
	}
	return titleCase(words[0])
}

func titleCase(s string) string {
	s = strings.ToLower(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func (c *Controller) handleFallback(ctx context.Context, log *zap.Logger, sess *types.Session, utterance string) Result {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	system := c.cfg.OpenAI.SystemPrompt
	if sess.CallerName != "" {
		system += " The caller's name is " + sess.CallerName + "."
	}
	start := time.Now()
	reply, err := c.llm.Complete(ctx, llm.Request{
		System:    system,
		Memory:    sess.Memory,
		Utterance: utterance,
		MaxTokens: c.cfg.OpenAI.MaxTokens,
	})
	observe("language_model", start)
	if err != nil {
		c.failure(log, "language_model", err)
		return c.listen(sess, lmApology)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return c.listen(sess, lmApology)
	}
	sess.Remember(utterance, reply, c.cfg.OpenAI.MemoryTurns)
	return c.listen(sess, reply)
}

func (c *Controller) failure(log *zap.Logger, service string, err error) upstream.Kind {
	kind := upstream.KindOf(err)
	metricUpstreamFailures.WithLabelValues(service, string(kind)).Inc()
	log.Warn("upstream failure",
		zap.String("service", service),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return kind
}

func observe(service string, start time.Time) {
	metricUpstreamLatency.WithLabelValues(service).Observe(float64(time.Since(start).Milliseconds()))
}
